// Package cursor persists the last fully processed X-LAST position of each Twikey feed so a
// sync can resume after a restart.
package cursor

import (
	"context"
	"sync"
)

// Store loads and saves feed positions. Load returns "" when nothing was stored yet.
type Store interface {
	Load(ctx context.Context, feed string) (string, error)
	Save(ctx context.Context, feed, position string) error
}

// Memory keeps positions for the lifetime of the process.
type Memory struct {
	mu        sync.RWMutex
	positions map[string]string
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{positions: make(map[string]string)}
}

func (m *Memory) Load(_ context.Context, feed string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positions[feed], nil
}

func (m *Memory) Save(_ context.Context, feed, position string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[feed] = position
	return nil
}
