package pipeline

import "github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"

// Stage names reported through the Observer.
const (
	StageDetection  = "detection"
	StageExtraction = "extraction"
	StageAnalysis   = "analysis"
)

// Observer receives pipeline events. Implementations must be fast; callbacks
// run synchronously on the pipeline goroutine.
type Observer interface {
	StageStarted(stage string)
	Progress(stage string, done, total int)
	SceneDetected(scene models.Scene)
	SceneExtracted(scene models.Scene)
	SceneAnalyzed(scene models.Scene)
	StageFailed(stage string, err error)
	Completed(sessionID int64)
}

// NopObserver ignores all events. Embed it to implement only the events a
// caller cares about.
type NopObserver struct{}

func (NopObserver) StageStarted(string)         {}
func (NopObserver) Progress(string, int, int)   {}
func (NopObserver) SceneDetected(models.Scene)  {}
func (NopObserver) SceneExtracted(models.Scene) {}
func (NopObserver) SceneAnalyzed(models.Scene)  {}
func (NopObserver) StageFailed(string, error)   {}
func (NopObserver) Completed(int64)             {}
