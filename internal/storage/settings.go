package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// defaultSettings are inserted lazily: only keys that do not exist yet are
// written, so user changes survive restarts and upgrades.
var defaultSettings = map[string]string{
	"scene_detection.threshold":          "30.0",
	"scene_detection.min_scene_duration": "2.0",
	"scene_detection.hwaccel_enabled":    "false",
	"analysis.api_key":                   "",
	"analysis.base_url":                  "",
	"analysis.model":                     "gpt-4.1",
	"analysis.fallback_model":            "gpt-4.1-mini",
	"analysis.minimal_model":             "gpt-4.1-nano",
	"analysis.batch_size":                "5",
	"analysis.confidence_threshold":      "0.7",
	"export.default_format":              "json",
	"index.dsn":                          "",
}

// legacyKeys maps historical flat setting keys to their namespaced
// replacements. Migration runs at startup and is idempotent: once the old key
// is gone there is nothing left to move.
var legacyKeys = map[string]string{
	"detection_threshold": "scene_detection.threshold",
	"min_scene_duration":  "scene_detection.min_scene_duration",
	"use_cuda":            "scene_detection.hwaccel_enabled",
	"api_key":             "analysis.api_key",
	"model":               "analysis.model",
	"batch_size":          "analysis.batch_size",
}

func (s *Store) migrateSettings() error {
	for oldKey, newKey := range legacyKeys {
		oldVal, err := s.Setting(oldKey)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		// A value already stored under the new key wins over the legacy one.
		if _, err := s.Setting(newKey); errors.Is(err, ErrNotFound) {
			if err := s.SetSetting(newKey, oldVal); err != nil {
				return err
			}
			s.logger.Info("migrated setting", "from", oldKey, "to", newKey)
		} else if err != nil {
			return err
		}

		if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, oldKey); err != nil {
			return fmt.Errorf("delete legacy setting %s: %w", oldKey, err)
		}
	}
	return nil
}

func (s *Store) seedSettings() error {
	for key, value := range defaultSettings {
		ts := now()
		_, err := s.db.Exec(`
			INSERT INTO settings (key, value, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO NOTHING`,
			key, value, ts, ts)
		if err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}

// Setting returns the raw string value stored under key.
func (s *Store) Setting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query setting %s: %w", key, err)
	}
	return value, nil
}

// DecodedSetting returns the value stored under key, decoded from JSON when
// the value parses as JSON, otherwise as the raw string.
func (s *Store) DecodedSetting(key string) (any, error) {
	raw, err := s.Setting(key)
	if err != nil {
		return nil, err
	}
	var decoded any
	if json.Unmarshal([]byte(raw), &decoded) == nil {
		return decoded, nil
	}
	return raw, nil
}

// SetSetting stores value under key, creating or updating the row.
func (s *Store) SetSetting(key, value string) error {
	ts := now()
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, ts, ts)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Settings returns all settings ordered by key.
func (s *Store) Settings() ([]models.Setting, error) {
	rows, err := s.db.Query(`SELECT id, key, value, created_at, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var settings []models.Setting
	for rows.Next() {
		var st models.Setting
		var createdAt, updatedAt string
		if err := rows.Scan(&st.ID, &st.Key, &st.Value, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		st.CreatedAt = parseTime(createdAt)
		st.UpdatedAt = parseTime(updatedAt)
		settings = append(settings, st)
	}
	return settings, rows.Err()
}

// defaultPrompts are seeded once; users may add, change or remove prompts
// afterwards.
var defaultPrompts = []models.Prompt{
	{Name: "Scene Description", Content: "Describe this scene in one or two sentences, focusing on the main subject and action."},
	{Name: "Scene Tags", Content: "List up to five comma-separated keywords that describe this scene."},
	{Name: "Sentiment", Content: "Describe the mood or emotional tone of this scene in a short phrase."},
	{Name: "Object Detection", Content: "List the distinct objects visible in this scene."},
	{Name: "Action Recognition", Content: "Describe the action taking place in this scene."},
	{Name: "One Word", Content: "Describe this scene in a single word."},
}

func (s *Store) seedPrompts() error {
	for _, p := range defaultPrompts {
		ts := now()
		_, err := s.db.Exec(`
			INSERT INTO prompts (name, content, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO NOTHING`,
			p.Name, p.Content, ts, ts)
		if err != nil {
			return fmt.Errorf("seed prompt %s: %w", p.Name, err)
		}
	}
	return nil
}

// Prompts returns all prompts ordered by id.
func (s *Store) Prompts() ([]models.Prompt, error) {
	rows, err := s.db.Query(`SELECT id, name, content, created_at, updated_at FROM prompts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		var p models.Prompt
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Content, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// PromptByName returns the prompt with the given name.
func (s *Store) PromptByName(name string) (*models.Prompt, error) {
	row := s.db.QueryRow(`SELECT id, name, content, created_at, updated_at FROM prompts WHERE name = ?`, name)

	var p models.Prompt
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Content, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prompt: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// SavePrompt creates the prompt or updates its content if the name exists.
func (s *Store) SavePrompt(name, content string) error {
	ts := now()
	_, err := s.db.Exec(`
		INSERT INTO prompts (name, content, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		name, content, ts, ts)
	if err != nil {
		return fmt.Errorf("save prompt %s: %w", name, err)
	}
	return nil
}

// DeletePrompt removes the prompt with the given name.
func (s *Store) DeletePrompt(name string) error {
	res, err := s.db.Exec(`DELETE FROM prompts WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete prompt %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
