// apps/go-server/internal/store/memory.go
//
// Key-value settings persistence for game engines.
// This file holds the Store interface and the in-memory implementation used
// in development/testing, or when no database is configured.
//
// Characteristics:
//   - Values are integers keyed by (owner, key).
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sync"
)

// Store defines the persistence interface for per-owner integer settings.
// Implementations may be backed by memory (this file) or SQLite (sqlite.go).
type Store interface {
	// GetInt returns the stored value and whether one exists.
	GetInt(ctx context.Context, owner, key string) (int, bool, error)

	// SetInt stores v under (owner, key); last write wins.
	SetInt(ctx context.Context, owner, key string, v int) error
}

type memKey struct{ owner, key string }

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu   sync.RWMutex   // guards vals
	vals map[memKey]int // keyed by owner + key
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{vals: make(map[memKey]int)}
}

// SetInt adds or updates the value in the map.
func (m *memory) SetInt(ctx context.Context, owner, key string, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[memKey{owner, key}] = v
	return nil
}

// GetInt looks up a value by owner and key.
func (m *memory) GetInt(ctx context.Context, owner, key string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[memKey{owner, key}]
	return v, ok, nil
}
