package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// sessionExport is the JSON export shape: the session joined with its video,
// plus the ordered scene list.
type sessionExport struct {
	Session sessionHeader `json:"session"`
	Scenes  []sceneExport `json:"scenes"`
}

type sessionHeader struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	VideoPath          string  `json:"video_path"`
	VideoDuration      float64 `json:"video_duration"`
	DetectionThreshold float64 `json:"detection_threshold"`
	MinSceneDuration   float64 `json:"min_scene_duration"`
	CreatedAt          string  `json:"created_at"`
}

type sceneExport struct {
	Timestamp   float64 `json:"timestamp"`
	Duration    float64 `json:"duration"`
	FramePath   string  `json:"frame_path,omitempty"`
	Description string  `json:"description,omitempty"`
	Tags        string  `json:"tags,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ExportJSON renders a session and its scenes as an indented JSON document.
func (s *Store) ExportJSON(sessionID int64) ([]byte, error) {
	sess, video, scenes, err := s.sessionWithScenes(sessionID)
	if err != nil {
		return nil, err
	}

	doc := sessionExport{
		Session: sessionHeader{
			ID:                 sess.ID,
			Name:               sess.Name,
			VideoPath:          video.FilePath,
			VideoDuration:      video.Duration,
			DetectionThreshold: sess.DetectionThreshold,
			MinSceneDuration:   sess.MinSceneDuration,
			CreatedAt:          sess.CreatedAt.Format(timeLayout),
		},
		Scenes: make([]sceneExport, 0, len(scenes)),
	}
	for _, sc := range scenes {
		doc.Scenes = append(doc.Scenes, sceneExport{
			Timestamp:   sc.Timestamp,
			Duration:    sc.Duration,
			FramePath:   sc.FramePath,
			Description: sc.Description,
			Tags:        sc.Tags,
			Confidence:  sc.Confidence,
		})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return out, nil
}

// ExportCSV renders a session's scenes as CSV with a fixed header.
func (s *Store) ExportCSV(sessionID int64) ([]byte, error) {
	_, _, scenes, err := s.sessionWithScenes(sessionID)
	if err != nil {
		return nil, err
	}
	return []byte(buildCSV(scenes)), nil
}

// buildCSV renders scene rows with description and tags always quoted and
// embedded double quotes doubled.
func buildCSV(scenes []models.Scene) string {
	var b strings.Builder
	b.WriteString("timestamp,duration,description,tags\n")
	for _, sc := range scenes {
		fmt.Fprintf(&b, "%.3f,%.3f,%s,%s\n",
			sc.Timestamp, sc.Duration, csvQuote(sc.Description), csvQuote(sc.Tags))
	}
	return b.String()
}

func csvQuote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func (s *Store) sessionWithScenes(sessionID int64) (*models.Session, *models.Video, []models.Scene, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	video, err := s.Video(sess.VideoID)
	if err != nil {
		return nil, nil, nil, err
	}
	scenes, err := s.ScenesForSession(sessionID)
	if err != nil {
		return nil, nil, nil, err
	}
	return sess, video, scenes, nil
}

// Reset backs up the database file, deletes all rows and re-seeds defaults.
// The backup path is returned ("" for in-memory databases, which have nothing
// to back up).
func (s *Store) Reset() (string, error) {
	backup := ""
	if s.path != ":memory:" {
		var err error
		backup, err = s.backupFile()
		if err != nil {
			return "", err
		}
	}

	for _, table := range []string{"scenes", "sessions", "videos", "settings", "prompts"} {
		if _, err := s.db.Exec(`DELETE FROM ` + table); err != nil {
			return "", fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := s.db.Exec(`DELETE FROM sqlite_sequence`); err != nil {
		return "", fmt.Errorf("reset row counters: %w", err)
	}

	if err := s.seedSettings(); err != nil {
		return "", err
	}
	if err := s.seedPrompts(); err != nil {
		return "", err
	}
	s.logger.Info("database reset", "backup", backup)
	return backup, nil
}

func (s *Store) backupFile() (string, error) {
	stamp := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("backup_%s_%s.db", stamp, uuid.NewString()[:8])
	dst := filepath.Join(filepath.Dir(s.path), name)

	src, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("open database for backup: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return dst, nil
}
