// Package turn defines TurnHandle, the one-per-turn cancellation token
// shared by the Conversation Orchestrator (C7), the Session Manager (C8),
// and the Interrupt/Barge-In Coordinator (C9), per spec §5's "one
// cancellation signal per TurnHandle" invariant.
package turn

import (
	"context"
	"sync"
)

// Reason records why a TurnHandle was cancelled, distinguishing a
// deliberate barge-in (no client-facing error) from every other cause
// (which does surface llm_response_error per §5).
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonBargeIn   Reason = "barge_in"
	ReasonClientEnd Reason = "client_end"
	ReasonTimeout   Reason = "timeout"
	ReasonError     Reason = "error"
)

// Handle wraps a turn's context and records the reason it was cancelled,
// if any. Safe for concurrent use; Cancel is idempotent — only the first
// call's reason is kept.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	reason Reason
}

// New derives a turn context from parent and returns the Handle controlling
// it.
func New(parent context.Context) (context.Context, *Handle) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &Handle{ctx: ctx, cancel: cancel}
}

// Cancel cancels the turn's context with reason, unless it was already
// cancelled.
func (h *Handle) Cancel(reason Reason) {
	h.mu.Lock()
	if h.reason != ReasonNone {
		h.mu.Unlock()
		return
	}
	h.reason = reason
	h.mu.Unlock()
	h.cancel()
}

// Reason reports why the turn was cancelled, or ReasonNone if it has not
// been cancelled (yet).
func (h *Handle) Reason() Reason {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reason
}

// Done reports the turn's cancellation channel.
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Context returns the turn's context, for deriving a scoped sub-context
// (e.g. the Orchestrator's 30s completion timeout, §4.7 step 5).
func (h *Handle) Context() context.Context {
	return h.ctx
}

// IsBargeIn reports whether the turn was cancelled specifically by a
// barge-in, the one cancellation cause that must not surface
// llm_response_error to the client (§5).
func (h *Handle) IsBargeIn() bool {
	return h.Reason() == ReasonBargeIn
}
