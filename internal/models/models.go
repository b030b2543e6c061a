// Package models holds the record types shared across the pipeline and storage layers.
package models

import "time"

// Video is a registered source video, unique by file path.
type Video struct {
	ID        int64
	FilePath  string
	Duration  float64 // seconds, refined after the first full decode
	CreatedAt time.Time
}

// Session is one detection+analysis run over one video. The detection
// parameters are captured at creation time and never change afterwards.
type Session struct {
	ID                 int64
	VideoID            int64
	Name               string
	DetectionThreshold float64
	MinSceneDuration   float64
	CreatedAt          time.Time
}

// Scene is a contiguous interval of a video owned by a session.
// FramePath, Description, Tags and Confidence are filled in by later
// pipeline stages; a freshly detected scene has bounds only.
type Scene struct {
	ID            int64
	SessionID     int64
	Timestamp     float64 // start, seconds
	Duration      float64 // seconds
	ThumbnailPath string
	FramePath     string
	Description   string
	Tags          string
	Confidence    float64 // 0 until analyzed, 1.0 on successful analysis
	CreatedAt     time.Time
}

// End returns the scene's end timestamp in seconds.
func (s Scene) End() float64 { return s.Timestamp + s.Duration }

// Boundary is an incremental detection result: a closed scene plus the
// frame-difference score of the cut that closed it. The tail scene of a
// video carries score 0 because there is no following frame to compare.
type Boundary struct {
	StartTime float64
	EndTime   float64
	Duration  float64
	Score     float64
}

// Prompt is a named, reusable analysis prompt, unique by name.
type Prompt struct {
	ID        int64
	Name      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Setting is one row of the string-keyed configuration store.
type Setting struct {
	ID        int64
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
