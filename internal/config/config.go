// Package config turns the string-keyed settings store into a typed
// configuration with explicit defaults.
package config

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/storage"
)

// Config holds the effective runtime configuration. A session captures the
// detection fields at creation time; changing settings later never alters an
// existing session.
type Config struct {
	Threshold        float64
	MinSceneDuration float64
	HWAccel          bool

	APIKey              string
	BaseURL             string
	Model               string
	FallbackModel       string
	MinimalModel        string
	BatchSize           int
	ConfidenceThreshold float64

	IndexDSN string
}

// Default returns the built-in configuration, matching the seeded settings.
func Default() Config {
	return Config{
		Threshold:           30.0,
		MinSceneDuration:    2.0,
		HWAccel:             false,
		Model:               "gpt-4.1",
		FallbackModel:       "gpt-4.1-mini",
		MinimalModel:        "gpt-4.1-nano",
		BatchSize:           5,
		ConfidenceThreshold: 0.7,
	}
}

// Source reads raw setting values; *storage.Store satisfies it.
type Source interface {
	Setting(key string) (string, error)
}

// Load reads the persisted settings over the defaults. Missing keys keep
// their default; malformed numeric values are a configuration error.
func Load(src Source) (Config, error) {
	cfg := Default()

	var err error
	if cfg.Threshold, err = floatSetting(src, "scene_detection.threshold", cfg.Threshold); err != nil {
		return cfg, err
	}
	if cfg.MinSceneDuration, err = floatSetting(src, "scene_detection.min_scene_duration", cfg.MinSceneDuration); err != nil {
		return cfg, err
	}
	if cfg.HWAccel, err = boolSetting(src, "scene_detection.hwaccel_enabled", cfg.HWAccel); err != nil {
		return cfg, err
	}
	if cfg.BatchSize, err = intSetting(src, "analysis.batch_size", cfg.BatchSize); err != nil {
		return cfg, err
	}
	if cfg.ConfidenceThreshold, err = floatSetting(src, "analysis.confidence_threshold", cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}

	cfg.APIKey = stringSetting(src, "analysis.api_key", cfg.APIKey)
	cfg.BaseURL = stringSetting(src, "analysis.base_url", cfg.BaseURL)
	cfg.Model = stringSetting(src, "analysis.model", cfg.Model)
	cfg.FallbackModel = stringSetting(src, "analysis.fallback_model", cfg.FallbackModel)
	cfg.MinimalModel = stringSetting(src, "analysis.minimal_model", cfg.MinimalModel)
	cfg.IndexDSN = stringSetting(src, "index.dsn", cfg.IndexDSN)

	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("detection threshold must be positive, got %g", c.Threshold)
	}
	if c.MinSceneDuration < 0 {
		return fmt.Errorf("minimum scene duration must not be negative, got %g", c.MinSceneDuration)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	return nil
}

func stringSetting(src Source, key, fallback string) string {
	v, err := src.Setting(key)
	if err != nil || v == "" {
		return fallback
	}
	return v
}

func floatSetting(src Source, key string, fallback float64) (float64, error) {
	raw, err := src.Setting(key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && raw == "") {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, fmt.Errorf("setting %s: %q is not a number", key, raw)
	}
	return v, nil
}

func intSetting(src Source, key string, fallback int) (int, error) {
	raw, err := src.Setting(key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && raw == "") {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("setting %s: %q is not an integer", key, raw)
	}
	return v, nil
}

func boolSetting(src Source, key string, fallback bool) (bool, error) {
	raw, err := src.Setting(key)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && raw == "") {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("setting %s: %q is not a boolean", key, raw)
	}
	return v, nil
}
