package config

import (
	"strings"
	"testing"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/storage"
)

// mapSource serves settings from a map, missing keys report ErrNotFound.
type mapSource map[string]string

func (m mapSource) Setting(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(mapSource{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("empty source should yield defaults, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(mapSource{
		"scene_detection.threshold":       "45.5",
		"scene_detection.hwaccel_enabled": "true",
		"analysis.api_key":                "sk-test",
		"analysis.batch_size":             "8",
		"analysis.model":                  "gpt-4.1-mini",
		"index.dsn":                       "postgres://localhost/scenes",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Threshold != 45.5 || !cfg.HWAccel || cfg.APIKey != "sk-test" || cfg.BatchSize != 8 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Model != "gpt-4.1-mini" || cfg.IndexDSN != "postgres://localhost/scenes" {
		t.Errorf("cfg = %+v", cfg)
	}
	// Untouched keys keep their defaults.
	if cfg.MinSceneDuration != 2.0 || cfg.FallbackModel != "gpt-4.1-mini" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadEmptyValueKeepsDefault(t *testing.T) {
	cfg, err := Load(mapSource{"analysis.model": ""})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gpt-4.1" {
		t.Errorf("model = %q, want default", cfg.Model)
	}
}

func TestLoadMalformedNumber(t *testing.T) {
	_, err := Load(mapSource{"scene_detection.threshold": "very high"})
	if err == nil || !strings.Contains(err.Error(), "scene_detection.threshold") {
		t.Errorf("err = %v, want a named configuration error", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}

	bad := cfg
	bad.Threshold = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero threshold accepted")
	}
	bad = cfg
	bad.BatchSize = -1
	if err := bad.Validate(); err == nil {
		t.Error("negative batch size accepted")
	}
}

func TestLoadFromStore(t *testing.T) {
	s, err := storage.Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	cfg, err := Load(s)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Seeded store values agree with the built-in defaults.
	if cfg.Threshold != 30.0 || cfg.BatchSize != 5 || cfg.Model != "gpt-4.1" {
		t.Errorf("cfg = %+v", cfg)
	}
}
