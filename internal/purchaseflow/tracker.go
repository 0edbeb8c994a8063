// Package purchaseflow implements the Purchase-Flow Tracker (C6): in-memory
// per-session state for a product discovery/payment funnel driven entirely
// by client events. The core never advances the funnel itself; Tracker only
// holds the latest state so the Conversation Orchestrator can annotate it
// into the system prompt (§4.7 step 3b).
package purchaseflow

import (
	"context"
	"sync"
	"time"

	"github.com/auravox/core/pkg/types"
)

// completedClearDelay is how long a purchase-completed state lingers before
// being cleared automatically (§4.6).
const completedClearDelay = 60 * time.Second

// StateTracker is the Purchase-Flow Tracker contract. [Tracker] is the
// default, in-process implementation; [RedisTracker] is the optional
// cross-process one (§4.6, SPEC_FULL §B).
type StateTracker interface {
	Set(ctx context.Context, sessionID string, status types.PurchaseStatus, dataPartial map[string]string) error
	Get(ctx context.Context, sessionID string) (types.PurchaseFlowState, error)
	Clear(ctx context.Context, sessionID string) error
}

// Tracker is a process-wide, session-keyed purchase-flow state table.
//
// Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	states   map[string]types.PurchaseFlowState
	clearers map[string]*time.Timer
	now      func() time.Time
}

// Compile-time interface check.
var _ StateTracker = (*Tracker)(nil)

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		states:   make(map[string]types.PurchaseFlowState),
		clearers: make(map[string]*time.Timer),
		now:      time.Now,
	}
}

// Set merges dataPartial into sessionID's data bag, updates its status and
// timestamp, and — if status is purchase-completed — schedules a clear
// after completedClearDelay. ctx is accepted for interface parity with
// [RedisTracker] and is otherwise unused.
func (t *Tracker) Set(_ context.Context, sessionID string, status types.PurchaseStatus, dataPartial map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.states[sessionID]
	state.Status = status
	state.UpdatedAt = t.now()
	if len(dataPartial) > 0 {
		if state.Data == nil {
			state.Data = make(map[string]string, len(dataPartial))
		}
		for k, v := range dataPartial {
			state.Data[k] = v
		}
	}
	t.states[sessionID] = state

	if existing, ok := t.clearers[sessionID]; ok {
		existing.Stop()
		delete(t.clearers, sessionID)
	}
	if status == types.PurchaseCompleted {
		t.clearers[sessionID] = time.AfterFunc(completedClearDelay, func() {
			_ = t.Clear(context.Background(), sessionID)
		})
	}
	return nil
}

// Get returns sessionID's current state, defaulting to {Status: idle} when
// no state has been recorded.
func (t *Tracker) Get(_ context.Context, sessionID string) (types.PurchaseFlowState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[sessionID]
	if !ok {
		return types.PurchaseFlowState{Status: types.PurchaseIdle}, nil
	}
	return state, nil
}

// Clear removes sessionID's entry, stopping any pending auto-clear timer.
// The Session Manager calls this when a session ends (§3's ownership note).
func (t *Tracker) Clear(_ context.Context, sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.clearers[sessionID]; ok {
		timer.Stop()
		delete(t.clearers, sessionID)
	}
	delete(t.states, sessionID)
	return nil
}
