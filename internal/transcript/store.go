// Package transcript implements the Transcript Store (C2): an append-only,
// per-session ordered message log that is also queryable across sessions by
// (user, persona) pair. It is the process-wide shared collaborator the
// Conversation Orchestrator (C7) uses to assemble cross-session history.
package transcript

import (
	"context"
	"fmt"

	"github.com/auravox/core/internal/apperr"
	"github.com/auravox/core/pkg/types"
)

// Store is the Transcript Store contract (§4.2). Implementations must
// preserve append order within a session.
type Store interface {
	// Append adds messages to sessionId's transcript atomically, in order.
	Append(ctx context.Context, sessionID string, messages []types.Message) error

	// HistoryFor returns every message across all of (userID, personaID)'s
	// sessions, oldest first. Legacy object-shaped content rows are
	// normalized on read (see [NormalizeLegacyContent]).
	HistoryFor(ctx context.Context, userID, personaID string) ([]types.Message, error)
}

// MemoryStore is an in-process [Store] backed by an ordered slice per
// session, suitable for tests and single-process deployments without a
// relational backend.
type MemoryStore struct {
	// bySession holds each session's transcript in append order.
	bySession map[string][]types.Message
	// sessionOwner records the (userID, personaID) pair a session belongs
	// to, so HistoryFor can find every session for that pair.
	sessionOwner map[string]ownerKey
	// order preserves session-creation order so HistoryFor concatenates
	// sessions deterministically oldest-session-first.
	order []string
}

type ownerKey struct {
	userID    string
	personaID string
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySession:    make(map[string][]types.Message),
		sessionOwner: make(map[string]ownerKey),
	}
}

// Bind records which (userID, personaID) pair sessionID belongs to, so
// later appends are attributable for [MemoryStore.HistoryFor]. Call once
// per session, typically when the Session Manager (C8) creates the
// session.
func (m *MemoryStore) Bind(sessionID, userID, personaID string) {
	if _, exists := m.sessionOwner[sessionID]; !exists {
		m.order = append(m.order, sessionID)
	}
	m.sessionOwner[sessionID] = ownerKey{userID: userID, personaID: personaID}
}

// Append adds messages to sessionID's transcript in order.
func (m *MemoryStore) Append(_ context.Context, sessionID string, messages []types.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if _, exists := m.sessionOwner[sessionID]; !exists {
		m.order = append(m.order, sessionID)
		m.sessionOwner[sessionID] = ownerKey{}
	}
	m.bySession[sessionID] = append(m.bySession[sessionID], messages...)
	return nil
}

// HistoryFor returns every message across all of (userID, personaID)'s
// sessions, oldest session first, messages within a session in append
// order.
func (m *MemoryStore) HistoryFor(_ context.Context, userID, personaID string) ([]types.Message, error) {
	var out []types.Message
	for _, sessionID := range m.order {
		owner, ok := m.sessionOwner[sessionID]
		if !ok || owner.userID != userID || owner.personaID != personaID {
			continue
		}
		out = append(out, m.bySession[sessionID]...)
	}
	return out, nil
}

// wrapWriteError annotates a transcript write failure so callers can test
// for it with apperr.TranscriptWriteError via errors.Is on the wrapped
// sentinel at the call site (see [Guard]).
func wrapWriteError(sessionID string, err error) error {
	return fmt.Errorf("transcript: %w: append %q: %w", apperr.TranscriptWriteError, sessionID, err)
}
