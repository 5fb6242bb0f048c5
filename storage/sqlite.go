// Package storage persists the small amount of server-side state the
// dashboards need: saved searches in SQLite and last-known-good snapshots
// in Redis.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLite wraps the database handle used by the saved-search store.
type SQLite struct {
	DB     *sql.DB
	Path   string
	Logger *zap.SugaredLogger
}

// NewSQLite opens (and if needed creates) the database at path. ":memory:"
// is accepted for tests. WAL mode and a busy timeout are applied so the API
// read path and the write path do not trip over each other.
func NewSQLite(path string, logger *zap.SugaredLogger) (*SQLite, error) {
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	logger.Infow("SQLite opened", "path", path)
	return &SQLite{DB: db, Path: path, Logger: logger}, nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	return s.DB.Close()
}
