// Package storage persists videos, sessions, scenes, settings and prompts in
// a local SQLite database. Each pipeline stage writes only its own columns,
// so partial runs stay consistent and inspectable.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

const timeLayout = time.RFC3339Nano

// Store wraps the SQLite database. It is not safe for concurrent writers;
// the pipeline serializes access by running one stage at a time.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// DefaultDBPath returns the database path under the user's home directory.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".scene_analyzer", "scene_analyzer.db")
}

// Open opens (creating if needed) the database at path, applies the schema,
// migrates legacy setting keys and seeds defaults. Use ":memory:" for an
// ephemeral database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases alive across calls and
	// avoids SQLITE_BUSY from the pure-Go driver.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path ("" for in-memory databases).
func (s *Store) Path() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

func (s *Store) init() error {
	if err := s.createSchema(); err != nil {
		return err
	}
	if err := s.migrateSettings(); err != nil {
		return err
	}
	if err := s.seedSettings(); err != nil {
		return err
	}
	return s.seedPrompts()
}

func (s *Store) createSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS videos (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		file_path  TEXT NOT NULL UNIQUE,
		duration   REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id            INTEGER NOT NULL REFERENCES videos(id),
		name                TEXT NOT NULL,
		detection_threshold REAL NOT NULL,
		min_scene_duration  REAL NOT NULL,
		created_at          TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS scenes (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id     INTEGER NOT NULL REFERENCES sessions(id),
		timestamp      REAL NOT NULL,
		duration       REAL NOT NULL,
		thumbnail_path TEXT,
		frame_path     TEXT,
		description    TEXT,
		tags           TEXT,
		confidence     REAL NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		key        TEXT NOT NULL UNIQUE,
		value      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS prompts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scenes_session ON scenes(session_id, timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func now() string { return time.Now().UTC().Format(timeLayout) }

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}
