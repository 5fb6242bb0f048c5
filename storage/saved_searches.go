package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a saved search ID does not exist.
var ErrNotFound = errors.New("saved search not found")

// SavedSearch is a persisted search query an operator can re-run. Query
// holds the JSON-encoded request body as submitted to the search endpoint.
type SavedSearch struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Query       json.RawMessage `json:"query"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	UsageCount  int             `json:"usage_count"`
}

// SavedSearchStore handles saved-search CRUD in SQLite.
type SavedSearchStore struct {
	db     *SQLite
	logger *zap.SugaredLogger
}

// NewSavedSearchStore creates the store and ensures its table exists.
func NewSavedSearchStore(db *SQLite, logger *zap.SugaredLogger) (*SavedSearchStore, error) {
	s := &SavedSearchStore{db: db, logger: logger}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensure saved_searches table: %w", err)
	}
	return s, nil
}

func (s *SavedSearchStore) ensureTable() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saved_searches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		query TEXT NOT NULL,
		tags TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_saved_searches_created_at ON saved_searches(created_at DESC);
	`
	if _, err := s.db.DB.Exec(schema); err != nil {
		return err
	}
	return nil
}

// List returns all saved searches, newest first.
func (s *SavedSearchStore) List() ([]SavedSearch, error) {
	rows, err := s.db.DB.Query(
		"SELECT id, name, description, query, tags, created_at, updated_at, usage_count FROM saved_searches ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query saved searches: %w", err)
	}
	defer rows.Close()

	// Non-nil so an empty table serializes as [] rather than null.
	searches := make([]SavedSearch, 0)
	for rows.Next() {
		search, err := scanSavedSearch(rows.Scan)
		if err != nil {
			return nil, err
		}
		searches = append(searches, search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved searches: %w", err)
	}
	return searches, nil
}

// Get returns one saved search by ID.
func (s *SavedSearchStore) Get(id string) (*SavedSearch, error) {
	row := s.db.DB.QueryRow(
		"SELECT id, name, description, query, tags, created_at, updated_at, usage_count FROM saved_searches WHERE id = ?", id)

	search, err := scanSavedSearch(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &search, nil
}

// Create persists a new saved search, assigning an ID when absent.
func (s *SavedSearchStore) Create(search *SavedSearch) error {
	if search.ID == "" {
		search.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	search.CreatedAt = now
	search.UpdatedAt = now
	search.UsageCount = 0

	tagsJSON, err := json.Marshal(search.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.DB.Exec(
		"INSERT INTO saved_searches (id, name, description, query, tags, created_at, updated_at, usage_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		search.ID, search.Name, search.Description, string(search.Query), string(tagsJSON),
		search.CreatedAt, search.UpdatedAt, search.UsageCount)
	if err != nil {
		return fmt.Errorf("create saved search: %w", err)
	}

	s.logger.Infow("Saved search created", "id", search.ID, "name", search.Name)
	return nil
}

// Delete removes a saved search by ID.
func (s *SavedSearchStore) Delete(id string) error {
	result, err := s.db.DB.Exec("DELETE FROM saved_searches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete saved search: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementUsage bumps the usage counter when a saved search is re-run.
func (s *SavedSearchStore) IncrementUsage(id string) error {
	if _, err := s.db.DB.Exec(
		"UPDATE saved_searches SET usage_count = usage_count + 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("increment usage count: %w", err)
	}
	return nil
}

func scanSavedSearch(scan func(dest ...interface{}) error) (SavedSearch, error) {
	var search SavedSearch
	var query, tagsJSON string

	err := scan(&search.ID, &search.Name, &search.Description, &query, &tagsJSON,
		&search.CreatedAt, &search.UpdatedAt, &search.UsageCount)
	if err != nil {
		return SavedSearch{}, err
	}

	search.Query = json.RawMessage(query)
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &search.Tags); err != nil {
			return SavedSearch{}, fmt.Errorf("unmarshal tags for %s: %w", search.ID, err)
		}
	}
	return search, nil
}
