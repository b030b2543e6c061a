package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// GetOrCreateVideo returns the video row for filePath, creating it on first
// reference. An existing row keeps its recorded duration.
func (s *Store) GetOrCreateVideo(filePath string, duration float64) (*models.Video, error) {
	if v, err := s.videoByPath(filePath); err == nil {
		return v, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	res, err := s.db.Exec(`INSERT INTO videos (file_path, duration, created_at) VALUES (?, ?, ?)`,
		filePath, duration, now())
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("video id: %w", err)
	}
	return s.Video(id)
}

// UpdateVideoDuration refines a video's duration after a full decode.
func (s *Store) UpdateVideoDuration(id int64, duration float64) error {
	if _, err := s.db.Exec(`UPDATE videos SET duration = ? WHERE id = ?`, duration, id); err != nil {
		return fmt.Errorf("update video duration: %w", err)
	}
	return nil
}

// Video returns the video with the given id.
func (s *Store) Video(id int64) (*models.Video, error) {
	return scanVideo(s.db.QueryRow(`SELECT id, file_path, duration, created_at FROM videos WHERE id = ?`, id))
}

func (s *Store) videoByPath(filePath string) (*models.Video, error) {
	return scanVideo(s.db.QueryRow(`SELECT id, file_path, duration, created_at FROM videos WHERE file_path = ?`, filePath))
}

func scanVideo(row *sql.Row) (*models.Video, error) {
	var v models.Video
	var createdAt string
	err := row.Scan(&v.ID, &v.FilePath, &v.Duration, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan video: %w", err)
	}
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

// CreateSession records a detection run for a video. The detection parameters
// are captured here and never changed afterwards.
func (s *Store) CreateSession(videoID int64, name string, threshold, minSceneDuration float64) (*models.Session, error) {
	res, err := s.db.Exec(`
		INSERT INTO sessions (video_id, name, detection_threshold, min_scene_duration, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		videoID, name, threshold, minSceneDuration, now())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	return s.Session(id)
}

// Session returns the session with the given id.
func (s *Store) Session(id int64) (*models.Session, error) {
	row := s.db.QueryRow(`
		SELECT id, video_id, name, detection_threshold, min_scene_duration, created_at
		FROM sessions WHERE id = ?`, id)

	var sess models.Session
	var createdAt string
	err := row.Scan(&sess.ID, &sess.VideoID, &sess.Name, &sess.DetectionThreshold, &sess.MinSceneDuration, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.CreatedAt = parseTime(createdAt)
	return &sess, nil
}

// Sessions returns all sessions, newest first.
func (s *Store) Sessions() ([]models.Session, error) {
	rows, err := s.db.Query(`
		SELECT id, video_id, name, detection_threshold, min_scene_duration, created_at
		FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		var createdAt string
		if err := rows.Scan(&sess.ID, &sess.VideoID, &sess.Name, &sess.DetectionThreshold, &sess.MinSceneDuration, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.CreatedAt = parseTime(createdAt)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AddScene persists a scene's time bounds as soon as detection finds them.
func (s *Store) AddScene(sessionID int64, timestamp, duration float64) (*models.Scene, error) {
	res, err := s.db.Exec(`
		INSERT INTO scenes (session_id, timestamp, duration, created_at)
		VALUES (?, ?, ?, ?)`,
		sessionID, timestamp, duration, now())
	if err != nil {
		return nil, fmt.Errorf("insert scene: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("scene id: %w", err)
	}
	return s.Scene(id)
}

// UpdateSceneFrame records the extracted keyframe path for a scene.
func (s *Store) UpdateSceneFrame(id int64, framePath string) error {
	if _, err := s.db.Exec(`UPDATE scenes SET frame_path = ? WHERE id = ?`, framePath, id); err != nil {
		return fmt.Errorf("update scene frame: %w", err)
	}
	return nil
}

// UpdateSceneThumbnail records a thumbnail path for a scene.
func (s *Store) UpdateSceneThumbnail(id int64, thumbnailPath string) error {
	if _, err := s.db.Exec(`UPDATE scenes SET thumbnail_path = ? WHERE id = ?`, thumbnailPath, id); err != nil {
		return fmt.Errorf("update scene thumbnail: %w", err)
	}
	return nil
}

// UpdateSceneAnalysis records the analysis result for a scene.
func (s *Store) UpdateSceneAnalysis(id int64, description, tags string, confidence float64) error {
	if _, err := s.db.Exec(`UPDATE scenes SET description = ?, tags = ?, confidence = ? WHERE id = ?`,
		description, tags, confidence, id); err != nil {
		return fmt.Errorf("update scene analysis: %w", err)
	}
	return nil
}

// Scene returns the scene with the given id.
func (s *Store) Scene(id int64) (*models.Scene, error) {
	row := s.db.QueryRow(sceneSelect+` WHERE id = ?`, id)
	sc, err := scanScene(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// ScenesForSession returns a session's scenes ordered by timestamp.
func (s *Store) ScenesForSession(sessionID int64) ([]models.Scene, error) {
	rows, err := s.db.Query(sceneSelect+` WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		sc, err := scanScene(rows.Scan)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, *sc)
	}
	return scenes, rows.Err()
}

const sceneSelect = `
	SELECT id, session_id, timestamp, duration, thumbnail_path, frame_path,
	       description, tags, confidence, created_at
	FROM scenes`

func scanScene(scan func(...any) error) (*models.Scene, error) {
	var sc models.Scene
	var thumbnail, frame, description, tags sql.NullString
	var createdAt string
	err := scan(&sc.ID, &sc.SessionID, &sc.Timestamp, &sc.Duration,
		&thumbnail, &frame, &description, &tags, &sc.Confidence, &createdAt)
	if err != nil {
		return nil, err
	}
	sc.ThumbnailPath = thumbnail.String
	sc.FramePath = frame.String
	sc.Description = description.String
	sc.Tags = tags.String
	sc.CreatedAt = parseTime(createdAt)
	return &sc, nil
}
