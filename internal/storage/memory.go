package storage

import (
	"encoding/json"
	"sync"
)

// MemoryStore is a map-backed Store used for tests and --ephemeral runs.
// Values round-trip through JSON so it exercises the same serialization
// path as the SQLite store.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]string)}
}

func (s *MemoryStore) LoadState() *StoredState {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.rows[stateKey]
	if !ok {
		return nil
	}
	var state StoredState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil
	}
	return &state
}

func (s *MemoryStore) SaveState(state *StoredState) {
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[stateKey] = string(data)
}

func (s *MemoryStore) ClearState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, stateKey)
}

func (s *MemoryStore) LoadActiveStream() *ActiveStream {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.rows[activeStreamKey]
	if !ok {
		return nil
	}
	var stream ActiveStream
	if err := json.Unmarshal([]byte(raw), &stream); err != nil {
		return nil
	}
	return &stream
}

func (s *MemoryStore) SaveActiveStream(stream *ActiveStream) {
	data, err := json.Marshal(stream)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[activeStreamKey] = string(data)
}

func (s *MemoryStore) ClearActiveStream() {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, activeStreamKey)
}
