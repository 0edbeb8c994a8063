package transcript

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/auravox/core/pkg/types"
)

// Guard wraps a [Store] and makes Append non-fatal, per §7's
// TranscriptWriteError policy: errors in this write path are logged but
// never fail the user-visible turn. HistoryFor is passed through
// unmodified, since a failed read degrades history assembly in a way the
// Orchestrator must see (it cannot silently assume empty history).
//
// Guard implements [Store]. All methods are safe for concurrent use.
type Guard struct {
	store    Store
	degraded atomic.Bool
}

// Compile-time interface check.
var _ Store = (*Guard)(nil)

// NewGuard wraps store so its Append errors are swallowed.
func NewGuard(store Store) *Guard {
	return &Guard{store: store}
}

// Append attempts to persist messages. On failure the error is logged via
// [apperr.TranscriptWriteError]'s kind and swallowed; the guard is marked
// degraded until the next successful append.
func (g *Guard) Append(ctx context.Context, sessionID string, messages []types.Message) error {
	err := g.store.Append(ctx, sessionID, messages)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("transcript: append failed, swallowing error",
			"session_id", sessionID,
			"err", wrapWriteError(sessionID, err),
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// HistoryFor delegates to the underlying store.
func (g *Guard) HistoryFor(ctx context.Context, userID, personaID string) ([]types.Message, error) {
	return g.store.HistoryFor(ctx, userID, personaID)
}

// IsDegraded reports whether the most recent Append failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}
