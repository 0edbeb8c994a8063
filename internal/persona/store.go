// Package persona provides the read-only Persona Store (C1): a cache over
// an external, process-wide shared collection of persona definitions,
// keyed by persona identifier.
package persona

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/auravox/core/pkg/types"
)

// ErrNotFound is returned by [Store.Lookup] when no persona with the given
// ID exists.
var ErrNotFound = errors.New("persona: not found")

// Store is a read-only mapping from persona identifier to [types.Persona].
// Implementations must be safe for concurrent use. No invalidation is
// required during the lifetime of a session that references a persona.
type Store interface {
	// Lookup returns the persona identified by id. It returns
	// (nil, [ErrNotFound]) wrapped if no such persona exists.
	Lookup(ctx context.Context, id string) (*types.Persona, error)
}

// MemoryStore is an in-memory [Store], suitable for tests and for
// bootstrapping personas from configuration at process startup.
type MemoryStore struct {
	mu       sync.RWMutex
	personas map[string]types.Persona
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a [MemoryStore] seeded with the given personas.
// Later entries with a duplicate ID overwrite earlier ones.
func NewMemoryStore(personas ...types.Persona) *MemoryStore {
	m := &MemoryStore{personas: make(map[string]types.Persona, len(personas))}
	for _, p := range personas {
		m.personas[p.ID] = p
	}
	return m
}

// Lookup returns the persona identified by id.
func (m *MemoryStore) Lookup(_ context.Context, id string) (*types.Persona, error) {
	m.mu.RLock()
	p, ok := m.personas[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("persona: lookup %q: %w", id, ErrNotFound)
	}
	cp := p
	return &cp, nil
}

// Put inserts or replaces a persona. Intended for config reload and tests.
func (m *MemoryStore) Put(p types.Persona) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.personas[p.ID] = p
}
