package tui

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/storage"
)

func TestBrowserListsSessions(t *testing.T) {
	store, err := storage.Open(":memory:", slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	v, _ := store.GetOrCreateVideo("/videos/holiday.mp4", 120)
	sess, _ := store.CreateSession(v.ID, "holiday cut", 30, 2)
	sc, _ := store.AddScene(sess.ID, 0, 3)
	store.UpdateSceneAnalysis(sc.ID, "a beach at sunset", "", 1.0)
	store.AddScene(sess.ID, 3, 4)

	b, err := newBrowser(store)
	if err != nil {
		t.Fatalf("newBrowser: %v", err)
	}
	if len(b.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(b.entries))
	}
	if b.entries[0].sceneCount != 2 || b.entries[0].videoPath != "/videos/holiday.mp4" {
		t.Errorf("entry = %+v", b.entries[0])
	}

	out := b.renderSessions()
	if !strings.Contains(out, "holiday cut") || !strings.Contains(out, "2 scenes") {
		t.Errorf("session list missing fields:\n%s", out)
	}

	b.scenes, _ = store.ScenesForSession(sess.ID)
	b.mode = sceneView
	detail := b.renderScenes()
	if !strings.Contains(detail, "a beach at sunset") || !strings.Contains(detail, "(not analyzed)") {
		t.Errorf("scene list missing fields:\n%s", detail)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a very long session name indeed", 10); got != "a very ..." {
		t.Errorf("truncate long = %q", got)
	}
}
