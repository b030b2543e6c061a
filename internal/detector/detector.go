// Package detector finds scene boundaries by thresholding the mean absolute
// grayscale difference between consecutive frames.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/cancel"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/ffmpeg"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// ErrVideoOpen is returned when the video cannot be opened or reports a
// non-positive frame rate.
var ErrVideoOpen = errors.New("cannot open video")

// ProgressFunc receives per-frame progress (frames done, total frames).
type ProgressFunc func(done, total int)

// BoundaryFunc receives each closed scene as soon as it is detected.
type BoundaryFunc func(models.Boundary)

// frameSource abstracts the decoded grayscale frame stream so the scan loop
// can be driven by synthetic frames in tests.
type frameSource interface {
	ReadFrame(buf []byte) error
}

// Detector scans a video for abrupt visual changes. The threshold is a raw
// 0-255 grayscale mean-absolute-difference, not normalized to the frame
// size; it has to be tuned per content.
type Detector struct {
	Threshold        float64
	MinSceneDuration float64
	UseHWAccel       bool

	logger *slog.Logger
}

// New returns a Detector with the given gate parameters.
func New(threshold, minSceneDuration float64, useHWAccel bool, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		Threshold:        threshold,
		MinSceneDuration: minSceneDuration,
		UseHWAccel:       useHWAccel,
		logger:           logger,
	}
}

// Detect decodes videoPath frame by frame and returns the detected scenes in
// order. onBoundary (optional) fires once per closed scene, onProgress
// (optional) once per frame. A stop request via tok ends the decode at the
// next frame boundary and returns the scenes accumulated so far with a nil
// error; the in-progress tail segment is not flushed.
func (d *Detector) Detect(ctx context.Context, videoPath string, tok *cancel.Token, onBoundary BoundaryFunc, onProgress ProgressFunc) ([]models.Boundary, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}

	info, err := ffmpeg.Probe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	if info.FPS <= 0 {
		return nil, fmt.Errorf("%w: non-positive frame rate %g", ErrVideoOpen, info.FPS)
	}
	d.logger.Info("video opened",
		"path", videoPath,
		"frames", info.FrameCount,
		"fps", info.FPS,
		"duration", fmt.Sprintf("%.2fs", info.Duration))

	src, first, err := d.openStream(ctx, videoPath, info)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVideoOpen, err)
	}
	defer src.Close()

	return d.scan(src, first, info.FPS, info.FrameCount, tok, onBoundary, onProgress)
}

// openStream opens the grayscale decode pipe. When hardware acceleration is
// requested it is tried first and verified with a first-frame read; any
// failure falls back to the standard decoder, since acceleration has no
// effect on the output.
func (d *Detector) openStream(ctx context.Context, videoPath string, info *ffmpeg.Info) (*ffmpeg.GrayStream, []byte, error) {
	first := make([]byte, info.Width*info.Height)

	if d.UseHWAccel {
		gs, err := ffmpeg.OpenGrayStream(ctx, videoPath, info.Width, info.Height, true)
		if err == nil {
			if rerr := gs.ReadFrame(first); rerr == nil {
				return gs, first, nil
			} else if rerr == io.EOF {
				return gs, nil, nil
			}
			gs.Close()
		}
		d.logger.Warn("hardware-accelerated decode unavailable, using standard decode", "path", videoPath)
	}

	gs, err := ffmpeg.OpenGrayStream(ctx, videoPath, info.Width, info.Height, false)
	if err != nil {
		return nil, nil, err
	}
	if rerr := gs.ReadFrame(first); rerr != nil {
		if rerr == io.EOF {
			return gs, nil, nil
		}
		gs.Close()
		return nil, nil, rerr
	}
	return gs, first, nil
}

// scan runs the boundary detection loop. first is the already-read frame 0
// (nil for an empty video).
func (d *Detector) scan(src frameSource, first []byte, fps float64, frameCount int, tok *cancel.Token, onBoundary BoundaryFunc, onProgress ProgressFunc) ([]models.Boundary, error) {
	scenes := []models.Boundary{}
	if first == nil {
		return scenes, nil
	}

	prev := first
	cur := make([]byte, len(first))
	currentSceneStart := 0.0
	frameIdx := 1
	logStep := frameCount / 10
	if logStep < 1 {
		logStep = 1
	}

	reportProgress := func() {
		if onProgress != nil && frameCount > 0 {
			onProgress(frameIdx, frameCount)
		}
		if frameIdx%logStep == 0 && frameCount > 0 {
			d.logger.Info("detection progress",
				"percent", frameIdx*100/frameCount,
				"scenes", len(scenes))
		}
	}
	reportProgress()

	stopped := false
	for {
		if tok.Stopped() {
			stopped = true
			d.logger.Info("detection stopped", "scenes", len(scenes))
			break
		}

		err := src.ReadFrame(cur)
		if err == io.EOF {
			break
		}
		if err != nil {
			return scenes, fmt.Errorf("decode frame %d: %w", frameIdx, err)
		}

		score := meanAbsDiff(prev, cur)
		if score > d.Threshold {
			currentTime := float64(frameIdx) / fps
			sceneDuration := currentTime - currentSceneStart
			// A boundary inside a too-short segment is discarded: short
			// flickers must not fragment a scene.
			if sceneDuration >= d.MinSceneDuration {
				b := models.Boundary{
					StartTime: currentSceneStart,
					EndTime:   currentTime,
					Duration:  sceneDuration,
					Score:     score,
				}
				scenes = append(scenes, b)
				currentSceneStart = currentTime
				d.logger.Debug("scene boundary", "time", fmt.Sprintf("%.2fs", currentTime), "score", fmt.Sprintf("%.2f", score))
				if onBoundary != nil {
					onBoundary(b)
				}
			}
		}

		prev, cur = cur, prev
		frameIdx++
		reportProgress()
	}

	// Close the tail segment, but only on a clean end of stream: a stopped
	// run returns exactly the scenes that passed the gate before the stop.
	if !stopped {
		lastTime := float64(frameIdx) / fps
		if lastTime-currentSceneStart >= d.MinSceneDuration {
			b := models.Boundary{
				StartTime: currentSceneStart,
				EndTime:   lastTime,
				Duration:  lastTime - currentSceneStart,
				Score:     0,
			}
			scenes = append(scenes, b)
			if onBoundary != nil {
				onBoundary(b)
			}
		}
	}

	d.logger.Info("detection finished", "scenes", len(scenes), "stopped", stopped)
	return scenes, nil
}

// meanAbsDiff is the boundary score: the mean absolute per-pixel difference
// between two grayscale frames.
func meanAbsDiff(a, b []byte) float64 {
	if len(a) == 0 {
		return 0
	}
	var sum uint64
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	return float64(sum) / float64(len(a))
}
