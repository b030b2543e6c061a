package storage

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVideoCreateAndRefine(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetOrCreateVideo("/videos/a.mp4", 12.5)
	if err != nil {
		t.Fatalf("GetOrCreateVideo: %v", err)
	}
	if v.ID == 0 || v.Duration != 12.5 {
		t.Fatalf("video = %+v", v)
	}

	// Same path returns the same row, keeping the stored duration.
	again, err := s.GetOrCreateVideo("/videos/a.mp4", 99)
	if err != nil {
		t.Fatalf("GetOrCreateVideo again: %v", err)
	}
	if again.ID != v.ID || again.Duration != 12.5 {
		t.Fatalf("second lookup = %+v, want id %d duration 12.5", again, v.ID)
	}

	if err := s.UpdateVideoDuration(v.ID, 13.04); err != nil {
		t.Fatalf("UpdateVideoDuration: %v", err)
	}
	refined, err := s.Video(v.ID)
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if refined.Duration != 13.04 {
		t.Errorf("duration = %g, want 13.04", refined.Duration)
	}
}

func TestSessionFreezesParameters(t *testing.T) {
	s := newTestStore(t)
	v, _ := s.GetOrCreateVideo("/videos/a.mp4", 10)

	sess, err := s.CreateSession(v.ID, "run 1", 30, 2)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Changing the global setting must not touch the recorded parameters.
	if err := s.SetSetting("scene_detection.threshold", "55.0"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Session(sess.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if got.DetectionThreshold != 30 || got.MinSceneDuration != 2 {
		t.Errorf("session parameters changed: %+v", got)
	}
}

func TestSceneStageWrites(t *testing.T) {
	s := newTestStore(t)
	v, _ := s.GetOrCreateVideo("/videos/a.mp4", 10)
	sess, _ := s.CreateSession(v.ID, "run", 30, 2)

	// Detection persists bounds only, out of order on purpose.
	sc2, err := s.AddScene(sess.ID, 3, 4)
	if err != nil {
		t.Fatalf("AddScene: %v", err)
	}
	sc1, err := s.AddScene(sess.ID, 0, 3)
	if err != nil {
		t.Fatalf("AddScene: %v", err)
	}

	if err := s.UpdateSceneFrame(sc1.ID, "/frames/scene_1.jpg"); err != nil {
		t.Fatalf("UpdateSceneFrame: %v", err)
	}
	if err := s.UpdateSceneAnalysis(sc2.ID, "a crowded street", "street, people", 1.0); err != nil {
		t.Fatalf("UpdateSceneAnalysis: %v", err)
	}

	scenes, err := s.ScenesForSession(sess.ID)
	if err != nil {
		t.Fatalf("ScenesForSession: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(scenes))
	}
	if scenes[0].Timestamp != 0 || scenes[1].Timestamp != 3 {
		t.Errorf("scenes not ordered by timestamp: %g, %g", scenes[0].Timestamp, scenes[1].Timestamp)
	}
	// Each stage's write touches only its own fields.
	if scenes[0].FramePath != "/frames/scene_1.jpg" || scenes[0].Description != "" {
		t.Errorf("scene 1 = %+v", scenes[0])
	}
	if scenes[1].Description != "a crowded street" || scenes[1].Confidence != 1.0 || scenes[1].FramePath != "" {
		t.Errorf("scene 2 = %+v", scenes[1])
	}
}

func TestDefaultSettingsSeeded(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Setting("scene_detection.threshold")
	if err != nil {
		t.Fatalf("Setting: %v", err)
	}
	if got != "30.0" {
		t.Errorf("threshold = %q, want 30.0", got)
	}
	if _, err := s.Setting("no.such.key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key err = %v, want ErrNotFound", err)
	}

	all, err := s.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(defaultSettings) {
		t.Errorf("seeded %d settings, want %d", len(all), len(defaultSettings))
	}
}

func TestSeedKeepsUserValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene_analyzer.db")
	logger := slog.New(slog.DiscardHandler)

	s, err := Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("analysis.batch_size", "10"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.Setting("analysis.batch_size")
	if err != nil {
		t.Fatal(err)
	}
	if got != "10" {
		t.Errorf("batch_size = %q after reopen, want the user value 10", got)
	}
}

func TestLegacyKeyMigration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene_analyzer.db")
	logger := slog.New(slog.DiscardHandler)

	s, err := Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a database written before namespaced keys existed.
	if _, err := s.db.Exec(`INSERT INTO settings (key, value, created_at, updated_at) VALUES ('detection_threshold', '42.0', ?, ?)`, now(), now()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = 'scene_detection.threshold'`); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Setting("scene_detection.threshold")
	if err != nil {
		t.Fatal(err)
	}
	if got != "42.0" {
		t.Errorf("migrated value = %q, want 42.0", got)
	}
	if _, err := s.Setting("detection_threshold"); !errors.Is(err, ErrNotFound) {
		t.Errorf("legacy key still present after migration")
	}
	s.Close()

	// Idempotent: a second open has nothing left to migrate.
	s, err = Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err = s.Setting("scene_detection.threshold")
	if err != nil {
		t.Fatal(err)
	}
	if got != "42.0" {
		t.Errorf("value after second open = %q, want 42.0", got)
	}
}

func TestMigrationPrefersNewKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene_analyzer.db")
	logger := slog.New(slog.DiscardHandler)

	s, err := Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`INSERT INTO settings (key, value, created_at, updated_at) VALUES ('api_key', 'old-secret', ?, ?)`, now(), now()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSetting("analysis.api_key", "new-secret"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.Setting("analysis.api_key")
	if err != nil {
		t.Fatal(err)
	}
	if got != "new-secret" {
		t.Errorf("api key = %q, want the existing new-key value", got)
	}
	if _, err := s.Setting("api_key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("legacy api_key still present")
	}
}

func TestDecodedSetting(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetSetting("export.columns", `["timestamp","description"]`); err != nil {
		t.Fatal(err)
	}
	v, err := s.DecodedSetting("export.columns")
	if err != nil {
		t.Fatal(err)
	}
	list, ok := v.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("decoded = %#v, want a 2-element list", v)
	}

	// Non-JSON values come back as the raw string.
	if err := s.SetSetting("analysis.api_key", "sk-plain"); err != nil {
		t.Fatal(err)
	}
	v, err = s.DecodedSetting("analysis.api_key")
	if err != nil {
		t.Fatal(err)
	}
	if v != "sk-plain" {
		t.Errorf("decoded = %#v, want raw string", v)
	}
}

func TestDefaultPromptsSeeded(t *testing.T) {
	s := newTestStore(t)

	prompts, err := s.Prompts()
	if err != nil {
		t.Fatal(err)
	}
	if len(prompts) != 6 {
		t.Fatalf("seeded %d prompts, want 6", len(prompts))
	}

	p, err := s.PromptByName("Scene Description")
	if err != nil {
		t.Fatalf("PromptByName: %v", err)
	}
	if p.Content == "" {
		t.Error("default prompt has empty content")
	}
}

func TestPromptCRUD(t *testing.T) {
	s := newTestStore(t)

	if err := s.SavePrompt("Colors", "List the dominant colors."); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePrompt("Colors", "List the three dominant colors."); err != nil {
		t.Fatal(err)
	}
	p, err := s.PromptByName("Colors")
	if err != nil {
		t.Fatal(err)
	}
	if p.Content != "List the three dominant colors." {
		t.Errorf("content = %q", p.Content)
	}

	if err := s.DeletePrompt("Colors"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePrompt("Colors"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestExportJSON(t *testing.T) {
	s := newTestStore(t)
	v, _ := s.GetOrCreateVideo("/videos/a.mp4", 10)
	sess, _ := s.CreateSession(v.ID, "run", 30, 2)
	sc, _ := s.AddScene(sess.ID, 0, 3)
	s.UpdateSceneAnalysis(sc.ID, "an empty hallway", "hallway", 1.0)

	out, err := s.ExportJSON(sess.ID)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	for _, want := range []string{`"video_path": "/videos/a.mp4"`, `"detection_threshold": 30`, `"an empty hallway"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("export missing %s:\n%s", want, out)
		}
	}
}

func TestBuildCSVQuoting(t *testing.T) {
	scenes := []models.Scene{
		{Timestamp: 0, Duration: 3, Description: `he said "stop"`, Tags: "speech, drama"},
		{Timestamp: 3, Duration: 4},
	}
	got := buildCSV(scenes)
	want := "timestamp,duration,description,tags\n" +
		"0.000,3.000,\"he said \"\"stop\"\"\",\"speech, drama\"\n" +
		"3.000,4.000,\"\",\"\"\n"
	if got != want {
		t.Errorf("csv =\n%s\nwant\n%s", got, want)
	}
}

func TestResetBacksUpAndReseeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene_analyzer.db")
	s, err := Open(path, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	v, _ := s.GetOrCreateVideo("/videos/a.mp4", 10)
	sess, _ := s.CreateSession(v.ID, "run", 30, 2)
	s.AddScene(sess.ID, 0, 3)
	s.SetSetting("analysis.batch_size", "10")

	backup, err := s.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if backup == "" {
		t.Fatal("no backup path returned")
	}
	if fi, err := os.Stat(backup); err != nil || fi.Size() == 0 {
		t.Fatalf("backup missing or empty: %v", err)
	}

	sessions, err := s.Sessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("%d sessions survive reset", len(sessions))
	}
	got, err := s.Setting("analysis.batch_size")
	if err != nil {
		t.Fatal(err)
	}
	if got != "5" {
		t.Errorf("batch_size = %q after reset, want the default 5", got)
	}
	prompts, _ := s.Prompts()
	if len(prompts) != 6 {
		t.Errorf("%d prompts after reset, want 6", len(prompts))
	}
}
