// Package extractor pulls one representative keyframe per scene from the
// source video, at the temporal midpoint of the scene.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/cancel"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/ffmpeg"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// ProgressFunc receives per-scene progress (scenes done, total scenes).
type ProgressFunc func(done, total int)

// SceneFunc receives each scene as soon as its keyframe file is written.
type SceneFunc func(models.Scene)

// grabFunc matches ffmpeg.GrabFrame; replaced in tests.
type grabFunc func(ctx context.Context, videoPath string, ts float64, outPath string) error

// Extractor writes one image per scene into an output directory.
type Extractor struct {
	logger *slog.Logger
	grab   grabFunc
}

// New returns an Extractor backed by ffmpeg.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger, grab: ffmpeg.GrabFrame}
}

// Extract grabs a midpoint keyframe for each scene in order and returns the
// scenes that got one, each with FramePath set to a verified absolute path.
// A scene whose seek, decode or encode fails is logged and omitted — never
// returned with a dangling path. JPEG encoding failures are retried once as
// PNG. Cancellation is polled per scene; on stop the scenes finished so far
// are returned with a nil error.
func (e *Extractor) Extract(ctx context.Context, videoPath string, scenes []models.Scene, outputDir string, tok *cancel.Token, onScene SceneFunc, onProgress ProgressFunc) ([]models.Scene, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("video file: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	extracted := make([]models.Scene, 0, len(scenes))
	for i, scene := range scenes {
		if tok.Stopped() {
			e.logger.Info("keyframe extraction stopped", "extracted", len(extracted), "total", len(scenes))
			break
		}
		if onProgress != nil {
			onProgress(i, len(scenes))
		}

		midpoint := scene.Timestamp + scene.Duration/2
		name := fmt.Sprintf("scene_%d", i+1)
		if scene.ID > 0 {
			name = fmt.Sprintf("scene_%d", scene.ID)
		}
		framePath := filepath.Join(outputDir, name+".jpg")

		if err := e.grab(ctx, videoPath, midpoint, framePath); err != nil {
			// One retry as PNG before giving up on the scene.
			altPath := strings.TrimSuffix(framePath, ".jpg") + ".png"
			e.logger.Warn("keyframe JPEG write failed, retrying as PNG", "scene", i+1, "error", err)
			if err := e.grab(ctx, videoPath, midpoint, altPath); err != nil {
				e.logger.Warn("keyframe extraction failed, skipping scene",
					"scene", i+1, "midpoint", fmt.Sprintf("%.2fs", midpoint), "error", err)
				continue
			}
			framePath = altPath
		}

		if err := verifyImage(framePath); err != nil {
			e.logger.Warn("keyframe unusable, skipping scene", "scene", i+1, "path", framePath, "error", err)
			continue
		}

		absPath, err := filepath.Abs(framePath)
		if err != nil {
			absPath = framePath
		}
		scene.FramePath = absPath
		extracted = append(extracted, scene)
		if onScene != nil {
			onScene(scene)
		}
		e.logger.Debug("keyframe extracted", "scene", i+1, "midpoint", fmt.Sprintf("%.2fs", midpoint), "path", absPath)
	}

	if onProgress != nil && len(scenes) > 0 && !tok.Stopped() {
		onProgress(len(scenes), len(scenes))
	}
	e.logger.Info("keyframe extraction finished", "extracted", len(extracted), "total", len(scenes))
	return extracted, nil
}

// verifyImage rejects missing or empty keyframe files.
func verifyImage(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return fmt.Errorf("empty file")
	}
	return nil
}
