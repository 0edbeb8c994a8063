// Package bargein implements the Interrupt/Barge-In Coordinator (C9): a
// per-session `avatarSpeaking` flag plus single-fire cancellation of the
// active TurnHandle when the user interrupts mid-speech (§4.9).
package bargein

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/internal/turn"
)

// InterruptionFallbacks is the fixed set of short interruption replies used
// when the dedicated short-prompt completion path fails (§4.9).
var InterruptionFallbacks = []string{"Oh, sorry!", "Oops!", "My bad!", "Sorry!", "Oh!"}

// Coordinator tracks one session's avatarSpeaking flag and the currently
// active TurnHandle, and decides whether a new partial transcript
// constitutes a barge-in.
//
// Safe for concurrent use.
type Coordinator struct {
	avatarSpeaking atomic.Bool
	fired          atomic.Bool

	mu     sync.Mutex
	handle *turn.Handle
	sink   clientevent.Sink
	avatarID string
}

// New creates a Coordinator that emits client events through sink.
func New(sink clientevent.Sink, avatarID string) *Coordinator {
	return &Coordinator{sink: sink, avatarID: avatarID}
}

// BeginTurn registers handle as the active TurnHandle and resets the
// one-shot user_spoke fire flag for the new turn.
func (c *Coordinator) BeginTurn(handle *turn.Handle) {
	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
	c.fired.Store(false)
}

// EndTurn clears the active TurnHandle and the avatarSpeaking flag. Called
// on llm_response_complete or on turn error (§4.9's second bullet).
func (c *Coordinator) EndTurn() {
	c.avatarSpeaking.Store(false)
	c.mu.Lock()
	c.handle = nil
	c.mu.Unlock()
}

// NotifyTTSChunk sets avatarSpeaking=true; called when the Orchestrator's
// TTS sink receives its first chunk of a turn.
func (c *Coordinator) NotifyTTSChunk() {
	c.avatarSpeaking.Store(true)
}

// nonTrivialMinLength is the shortest partial transcript treated as
// evidence the user is actually speaking, filtering out stray noise/VAD
// blips that produce a one- or two-character partial.
const nonTrivialMinLength = 3

// ObservePartial evaluates a partial transcript against the avatarSpeaking
// flag. If the avatar is currently speaking and partial is non-trivial, it
// fires user_spoke exactly once per turn, clears avatarSpeaking, and
// cancels the active TurnHandle with [turn.ReasonBargeIn]. Returns true if
// a barge-in was triggered.
func (c *Coordinator) ObservePartial(partial string) bool {
	if !c.avatarSpeaking.Load() {
		return false
	}
	if len(strings.TrimSpace(partial)) < nonTrivialMinLength {
		return false
	}
	if !c.fired.CompareAndSwap(false, true) {
		return false
	}

	c.avatarSpeaking.Store(false)
	c.sink.Send(clientevent.UserSpokeEvent(partial, "during_speech"))

	c.mu.Lock()
	handle := c.handle
	c.mu.Unlock()
	if handle != nil {
		handle.Cancel(turn.ReasonBargeIn)
	}
	return true
}

// AvatarSpeaking reports the current flag value.
func (c *Coordinator) AvatarSpeaking() bool {
	return c.avatarSpeaking.Load()
}
