// Package pipeline coordinates a full analysis session: detect scene
// boundaries, extract a keyframe per scene, describe the keyframes with the
// remote model, persisting after every step so interrupted runs stay
// inspectable.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/analyzer"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/cancel"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/config"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/detector"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/extractor"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/ffmpeg"
	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// Store is the subset of the storage layer the coordinator writes through.
type Store interface {
	GetOrCreateVideo(filePath string, duration float64) (*models.Video, error)
	UpdateVideoDuration(id int64, duration float64) error
	CreateSession(videoID int64, name string, threshold, minSceneDuration float64) (*models.Session, error)
	AddScene(sessionID int64, timestamp, duration float64) (*models.Scene, error)
	UpdateSceneFrame(id int64, framePath string) error
	UpdateSceneAnalysis(id int64, description, tags string, confidence float64) error
	ScenesForSession(sessionID int64) ([]models.Scene, error)
}

// Prober reads video metadata.
type Prober func(ctx context.Context, videoPath string) (*ffmpeg.Info, error)

// Detector finds scene boundaries.
type Detector interface {
	Detect(ctx context.Context, videoPath string, tok *cancel.Token, onBoundary detector.BoundaryFunc, onProgress detector.ProgressFunc) ([]models.Boundary, error)
}

// Extractor grabs one keyframe per scene.
type Extractor interface {
	Extract(ctx context.Context, videoPath string, scenes []models.Scene, outputDir string, tok *cancel.Token, onScene extractor.SceneFunc, onProgress extractor.ProgressFunc) ([]models.Scene, error)
}

// Analyzer describes keyframes with the remote model.
type Analyzer interface {
	Configured() bool
	AnalyzeBatch(ctx context.Context, scenes []models.Scene, prompt string, batchSize int, tok *cancel.Token, onScene analyzer.SceneFunc, onProgress analyzer.ProgressFunc) ([]models.Scene, error)
}

// Indexer mirrors analyzed scenes into the vector index. Optional.
type Indexer interface {
	Upsert(ctx context.Context, scene models.Scene) error
}

// Coordinator runs the detection → extraction → analysis chain for one
// session. Stages run strictly in sequence; the store is the only shared
// resource and each stage writes only its own columns.
type Coordinator struct {
	store    Store
	probe    Prober
	detector Detector
	extract  Extractor
	analyzer Analyzer
	index    Indexer

	cfg        config.Config
	outputRoot string
	observer   Observer
	logger     *slog.Logger
}

// New builds a coordinator with real components for the given configuration.
// The analysis client is configured only when an API key is present; without
// one the analysis stage is skipped with a warning.
func New(store Store, cfg config.Config, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := analyzer.NewClient(logger)
	if cfg.APIKey != "" {
		tiers := analyzer.ModelTiers{Primary: cfg.Model, Standard: cfg.FallbackModel, Minimal: cfg.MinimalModel}
		if err := client.Configure(cfg.APIKey, cfg.BaseURL, tiers); err != nil {
			return nil, err
		}
	}

	home, _ := os.UserHomeDir()
	return &Coordinator{
		store:      store,
		probe:      ffmpeg.Probe,
		detector:   detector.New(cfg.Threshold, cfg.MinSceneDuration, cfg.HWAccel, logger),
		extract:    extractor.New(logger),
		analyzer:   client,
		cfg:        cfg,
		outputRoot: filepath.Join(home, ".scene_analyzer", "sessions"),
		observer:   NopObserver{},
		logger:     logger,
	}, nil
}

// SetObserver replaces the event sink. Call before Run.
func (c *Coordinator) SetObserver(obs Observer) {
	if obs == nil {
		obs = NopObserver{}
	}
	c.observer = obs
}

// SetIndexer attaches an optional vector index. Index failures are logged,
// never surfaced as stage failures.
func (c *Coordinator) SetIndexer(idx Indexer) { c.index = idx }

// AnalysisClient exposes the underlying client so callers can reuse its
// embedding support for the vector index.
func (c *Coordinator) AnalysisClient() *analyzer.Client {
	client, _ := c.analyzer.(*analyzer.Client)
	return client
}

// Run executes the full chain for one video and returns the persisted
// session. Cancellation via tok ends the current stage cleanly; the session
// keeps whatever completed before the stop and no completion event is
// emitted. Stage errors are reported through the observer and returned; rows
// persisted by earlier stages remain valid.
func (c *Coordinator) Run(ctx context.Context, videoPath, sessionName, prompt string, tok *cancel.Token) (sess *models.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
			c.logger.Error("pipeline panic", "video", videoPath, "panic", r)
			c.observer.StageFailed(StageDetection, err)
		}
	}()

	info, err := c.probe(ctx, videoPath)
	if err != nil {
		wrapped := fmt.Errorf("probe %s: %w", videoPath, err)
		c.observer.StageFailed(StageDetection, wrapped)
		return nil, wrapped
	}

	video, err := c.store.GetOrCreateVideo(videoPath, info.Duration)
	if err != nil {
		c.observer.StageFailed(StageDetection, err)
		return nil, err
	}
	if err := c.store.UpdateVideoDuration(video.ID, info.Duration); err != nil {
		c.observer.StageFailed(StageDetection, err)
		return nil, err
	}

	if sessionName == "" {
		sessionName = "Session " + time.Now().Format("2006-01-02 15:04:05")
	}
	// The session freezes the detection parameters in use right now.
	sess, err = c.store.CreateSession(video.ID, sessionName, c.cfg.Threshold, c.cfg.MinSceneDuration)
	if err != nil {
		c.observer.StageFailed(StageDetection, err)
		return nil, err
	}
	c.logger.Info("session started", "session", sess.ID, "video", videoPath,
		"threshold", c.cfg.Threshold, "min_scene_duration", c.cfg.MinSceneDuration)

	if err := c.runDetection(ctx, sess, videoPath, tok); err != nil {
		return sess, err
	}
	if tok.Stopped() {
		return sess, nil
	}

	scenes, err := c.store.ScenesForSession(sess.ID)
	if err != nil {
		c.observer.StageFailed(StageDetection, err)
		return sess, err
	}
	if len(scenes) > 0 {
		if err := c.runExtraction(ctx, sess, videoPath, scenes, tok); err != nil {
			return sess, err
		}
		if tok.Stopped() {
			return sess, nil
		}

		scenes, err = c.store.ScenesForSession(sess.ID)
		if err != nil {
			c.observer.StageFailed(StageExtraction, err)
			return sess, err
		}
		if err := c.runAnalysis(ctx, sess, scenes, prompt, tok); err != nil {
			return sess, err
		}
		if tok.Stopped() {
			return sess, nil
		}
	}

	c.observer.Completed(sess.ID)
	c.logger.Info("session completed", "session", sess.ID, "scenes", len(scenes))
	return sess, nil
}

// runDetection persists each boundary as soon as it is found, so detection
// progress is durable even if the process dies before extraction.
func (c *Coordinator) runDetection(ctx context.Context, sess *models.Session, videoPath string, tok *cancel.Token) error {
	c.observer.StageStarted(StageDetection)

	var persistErr error
	_, err := c.detector.Detect(ctx, videoPath, tok,
		func(b models.Boundary) {
			if persistErr != nil {
				return
			}
			scene, err := c.store.AddScene(sess.ID, b.StartTime, b.Duration)
			if err != nil {
				persistErr = err
				return
			}
			c.observer.SceneDetected(*scene)
		},
		func(done, total int) {
			c.observer.Progress(StageDetection, done, total)
		})
	if err == nil {
		err = persistErr
	}
	if err != nil {
		c.logger.Error("detection failed", "session", sess.ID, "error", err)
		c.observer.StageFailed(StageDetection, err)
		return err
	}
	return nil
}

func (c *Coordinator) runExtraction(ctx context.Context, sess *models.Session, videoPath string, scenes []models.Scene, tok *cancel.Token) error {
	c.observer.StageStarted(StageExtraction)

	outputDir := filepath.Join(c.outputRoot,
		fmt.Sprintf("session_%d_%s", sess.ID, sess.CreatedAt.Format("20060102_150405")))

	var persistErr error
	_, err := c.extract.Extract(ctx, videoPath, scenes, outputDir, tok,
		func(scene models.Scene) {
			if persistErr != nil {
				return
			}
			if err := c.store.UpdateSceneFrame(scene.ID, scene.FramePath); err != nil {
				persistErr = err
				return
			}
			c.observer.SceneExtracted(scene)
		},
		func(done, total int) {
			c.observer.Progress(StageExtraction, done, total)
		})
	if err == nil {
		err = persistErr
	}
	if err != nil {
		c.logger.Error("extraction failed", "session", sess.ID, "error", err)
		c.observer.StageFailed(StageExtraction, err)
		return err
	}
	return nil
}

// runAnalysis describes only scenes whose keyframe file exists and is
// non-empty; the rest are skipped with a warning.
func (c *Coordinator) runAnalysis(ctx context.Context, sess *models.Session, scenes []models.Scene, prompt string, tok *cancel.Token) error {
	if !c.analyzer.Configured() {
		c.logger.Warn("analysis skipped: no API key configured", "session", sess.ID)
		return nil
	}

	analyzable := make([]models.Scene, 0, len(scenes))
	for _, sc := range scenes {
		if !validImage(sc.FramePath) {
			c.logger.Warn("scene skipped: no usable keyframe", "scene", sc.ID, "path", sc.FramePath)
			continue
		}
		analyzable = append(analyzable, sc)
	}
	if len(analyzable) == 0 {
		return nil
	}

	c.observer.StageStarted(StageAnalysis)

	var persistErr error
	_, err := c.analyzer.AnalyzeBatch(ctx, analyzable, prompt, c.cfg.BatchSize, tok,
		func(scene models.Scene) {
			if persistErr != nil {
				return
			}
			if err := c.store.UpdateSceneAnalysis(scene.ID, scene.Description, scene.Tags, scene.Confidence); err != nil {
				persistErr = err
				return
			}
			c.observer.SceneAnalyzed(scene)
			if c.index != nil && scene.Confidence > 0 {
				if err := c.index.Upsert(ctx, scene); err != nil {
					c.logger.Warn("scene index update failed", "scene", scene.ID, "error", err)
				}
			}
		},
		func(done, total int) {
			c.observer.Progress(StageAnalysis, done, total)
		})
	if err == nil {
		err = persistErr
	}
	if err != nil {
		c.logger.Error("analysis failed", "session", sess.ID, "error", err)
		c.observer.StageFailed(StageAnalysis, err)
		return err
	}
	return nil
}

func validImage(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}
