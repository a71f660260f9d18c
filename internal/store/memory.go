// apps/go-server/internal/store/memory.go
//
// In-memory registry of live game engines, keyed by session ID.
// Games are ephemeral by design: an engine lives for one play session and is
// gone on restart; only the final score record is persisted (elsewhere).
//
// Characteristics:
//   - Stores *game.Engine objects keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Errors are returned for missing game IDs on Get().

package store

import (
	"context"
	"errors"
	"sync"

	"github.com/treliann/simon/apps/go-server/internal/game"
)

// ErrNotFound is returned by Get for unknown game IDs.
var ErrNotFound = errors.New("game not found")

// Store defines the registry interface for live game sessions.
type Store interface {
	// Save registers or replaces an engine under its ID.
	Save(ctx context.Context, e *game.Engine) error

	// Get retrieves an engine by ID.
	// Returns ErrNotFound if the game is not registered.
	Get(ctx context.Context, id string) (*game.Engine, error)
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu    sync.RWMutex            // guards games map
	games map[string]*game.Engine // keyed by Engine.ID()
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{games: make(map[string]*game.Engine)}
}

// Save adds or updates the engine in the map.
func (m *memory) Save(ctx context.Context, e *game.Engine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[e.ID()] = e
	return nil
}

// Get looks up an engine by ID.
func (m *memory) Get(ctx context.Context, id string) (*game.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.games[id]; ok {
		return e, nil
	}
	return nil, ErrNotFound
}
