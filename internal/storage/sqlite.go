package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists session state in a single kv table. All operations
// are mutex-guarded; the store owns no live objects, only serialized rows.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
	dbPath string
}

// NewSQLiteStore opens (or creates) the database at the given path.
// Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for collaborators that share the database file
// (the legacy migration runner).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// LoadState returns the stored transcript snapshot, or nil when absent or
// unparsable. Corrupt rows are treated as nothing-to-restore, never as fatal.
func (s *SQLiteStore) LoadState() *StoredState {
	raw, ok := s.get(stateKey)
	if !ok {
		return nil
	}
	var state StoredState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.Warn("Failed to parse stored chat state", zap.Error(err))
		return nil
	}
	return &state
}

// SaveState writes the transcript snapshot. Best-effort: failures are logged
// and the previous row is left in place.
func (s *SQLiteStore) SaveState(state *StoredState) {
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("Failed to serialize chat state", zap.Error(err))
		return
	}
	s.set(stateKey, string(data))
}

// ClearState removes the transcript snapshot.
func (s *SQLiteStore) ClearState() {
	s.del(stateKey)
}

// LoadActiveStream returns the active-stream pointer, or nil when absent or
// unparsable.
func (s *SQLiteStore) LoadActiveStream() *ActiveStream {
	raw, ok := s.get(activeStreamKey)
	if !ok {
		return nil
	}
	var stream ActiveStream
	if err := json.Unmarshal([]byte(raw), &stream); err != nil {
		s.logger.Warn("Failed to parse active stream state", zap.Error(err))
		return nil
	}
	return &stream
}

// SaveActiveStream writes the active-stream pointer.
func (s *SQLiteStore) SaveActiveStream(stream *ActiveStream) {
	data, err := json.Marshal(stream)
	if err != nil {
		s.logger.Warn("Failed to serialize active stream state", zap.Error(err))
		return
	}
	s.set(activeStreamKey, string(data))
}

// ClearActiveStream removes only the pointer, not the transcript.
func (s *SQLiteStore) ClearActiveStream() {
	s.del(activeStreamKey)
}

func (s *SQLiteStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false
	}
	if err != nil {
		s.logger.Warn("Failed to read kv row", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, true
}

func (s *SQLiteStore) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		s.logger.Warn("Failed to persist kv row", zap.String("key", key), zap.Error(err))
	}
}

func (s *SQLiteStore) del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		s.logger.Warn("Failed to delete kv row", zap.String("key", key), zap.Error(err))
	}
}
