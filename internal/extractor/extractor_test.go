package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/cancel"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

func testScenes(n int) []models.Scene {
	scenes := make([]models.Scene, n)
	for i := range scenes {
		scenes[i] = models.Scene{
			ID:        int64(i + 1),
			Timestamp: float64(i) * 5,
			Duration:  5,
		}
	}
	return scenes
}

// newTestExtractor returns an extractor whose grab writes a small fake image
// through the supplied function instead of invoking ffmpeg.
func newTestExtractor(grab grabFunc) *Extractor {
	return &Extractor{logger: slog.New(slog.DiscardHandler), grab: grab}
}

func writeFake(_ context.Context, _ string, _ float64, outPath string) error {
	return os.WriteFile(outPath, []byte("img"), 0o644)
}

// tempVideo creates a placeholder video file so the source existence check passes.
func tempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractAllScenes(t *testing.T) {
	video := tempVideo(t)
	outDir := t.TempDir()

	var midpoints []float64
	e := newTestExtractor(func(ctx context.Context, v string, ts float64, out string) error {
		midpoints = append(midpoints, ts)
		return writeFake(ctx, v, ts, out)
	})

	scenes := testScenes(3)
	got, err := e.Extract(context.Background(), video, scenes, outDir, nil, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("extracted %d scenes, want 3", len(got))
	}
	for i, s := range got {
		if s.ID != scenes[i].ID {
			t.Errorf("scene %d out of order: id %d", i, s.ID)
		}
		if !filepath.IsAbs(s.FramePath) {
			t.Errorf("scene %d frame path %q is not absolute", i, s.FramePath)
		}
		fi, err := os.Stat(s.FramePath)
		if err != nil || fi.Size() == 0 {
			t.Errorf("scene %d frame file missing or empty: %v", i, err)
		}
		wantMid := scenes[i].Timestamp + scenes[i].Duration/2
		if midpoints[i] != wantMid {
			t.Errorf("scene %d grabbed at %g, want midpoint %g", i, midpoints[i], wantMid)
		}
	}
}

// A scene whose grab fails in both formats is omitted, and later scenes are
// still processed.
func TestExtractSkipsFailedScene(t *testing.T) {
	video := tempVideo(t)
	outDir := t.TempDir()

	e := newTestExtractor(func(ctx context.Context, v string, ts float64, out string) error {
		if ts == 7.5 { // midpoint of scene 2
			return fmt.Errorf("seek failed")
		}
		return writeFake(ctx, v, ts, out)
	})

	got, err := e.Extract(context.Background(), video, testScenes(3), outDir, nil, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("extracted %d scenes, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("wrong scenes kept: %d, %d", got[0].ID, got[1].ID)
	}
	for _, s := range got {
		if s.FramePath == "" {
			t.Errorf("kept scene %d has no frame path", s.ID)
		}
	}
}

// JPEG failure falls back to PNG once.
func TestExtractPNGFallback(t *testing.T) {
	video := tempVideo(t)
	outDir := t.TempDir()

	e := newTestExtractor(func(ctx context.Context, v string, ts float64, out string) error {
		if strings.HasSuffix(out, ".jpg") {
			return fmt.Errorf("jpeg encode failed")
		}
		return writeFake(ctx, v, ts, out)
	})

	got, err := e.Extract(context.Background(), video, testScenes(1), outDir, nil, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("extracted %d scenes, want 1", len(got))
	}
	if !strings.HasSuffix(got[0].FramePath, ".png") {
		t.Errorf("frame path %q, want PNG fallback", got[0].FramePath)
	}
}

// An empty output file counts as a failure, not a success.
func TestExtractRejectsEmptyImage(t *testing.T) {
	video := tempVideo(t)
	outDir := t.TempDir()

	e := newTestExtractor(func(_ context.Context, _ string, _ float64, out string) error {
		return os.WriteFile(out, nil, 0o644)
	})

	got, err := e.Extract(context.Background(), video, testScenes(1), outDir, nil, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("extracted %d scenes from empty images, want 0", len(got))
	}
}

func TestExtractCancellation(t *testing.T) {
	video := tempVideo(t)
	outDir := t.TempDir()

	var tok cancel.Token
	count := 0
	e := newTestExtractor(func(ctx context.Context, v string, ts float64, out string) error {
		count++
		if count == 2 {
			tok.Stop()
		}
		return writeFake(ctx, v, ts, out)
	})

	got, err := e.Extract(context.Background(), video, testScenes(5), outDir, &tok, nil, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("extracted %d scenes after stop, want 2", len(got))
	}
}

func TestExtractMissingVideo(t *testing.T) {
	e := newTestExtractor(writeFake)
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"), testScenes(1), t.TempDir(), nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing video")
	}
}
