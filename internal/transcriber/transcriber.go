// Package transcriber implements the Transcriber (C5): a duplex connection
// to an external STT service that delivers partial and final transcripts to
// the rest of the session, and flags barge-in when the user speaks while
// the avatar is speaking (§4.5).
package transcriber

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/auravox/core/internal/bargein"
	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/pkg/provider/stt"
	"github.com/auravox/core/pkg/types"
)

// nonTrivialPartialMinLength is the shortest trimmed partial transcript
// treated as actual speech for barge-in purposes (§4.5 — "trimmed length >
// 2 characters").
const nonTrivialPartialMinLength = 3

// sessionConfig is the fixed STT session configuration every Transcriber
// opens with (§4.5): 16-bit PCM mono at 16kHz, server VAD at threshold
// 0.3 with 300ms prefix padding and 500ms silence duration, English.
var sessionConfig = stt.StreamConfig{
	SampleRate: 16000,
	Channels:   1,
	Language:   "en",
	Turn: stt.TurnDetection{
		Threshold:         0.3,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
	},
}

// Transcriber owns one STT SessionHandle for the lifetime of a client
// session. Safe for concurrent use; Close is idempotent.
type Transcriber struct {
	provider stt.Provider
	sink     clientevent.Sink
	bargein  *bargein.Coordinator
	log      *slog.Logger

	mu      sync.Mutex
	session stt.SessionHandle
	partial strings.Builder
	closed  bool

	finals chan string
	done   chan struct{}
}

// New creates a Transcriber that re-emits STT events to sink and feeds
// barge-in observations to coord.
func New(provider stt.Provider, sink clientevent.Sink, coord *bargein.Coordinator, log *slog.Logger) *Transcriber {
	if log == nil {
		log = slog.Default()
	}
	return &Transcriber{
		provider: provider,
		sink:     sink,
		bargein:  coord,
		log:      log,
		finals:   make(chan string, 8),
		done:     make(chan struct{}),
	}
}

// Start opens the STT session and begins forwarding partial/final events.
// The returned channel yields trimmed, non-empty final transcripts; it is
// closed when the session ends.
func (t *Transcriber) Start(ctx context.Context) (<-chan string, error) {
	session, err := t.provider.StartStream(ctx, sessionConfig)
	if err != nil {
		return nil, fmt.Errorf("transcriber: start stream: %w", err)
	}

	t.mu.Lock()
	t.session = session
	t.mu.Unlock()

	go t.pump(session)

	return t.finals, nil
}

func (t *Transcriber) pump(session stt.SessionHandle) {
	defer close(t.finals)
	defer close(t.done)

	partials := session.Partials()
	finals := session.Finals()
	for partials != nil || finals != nil {
		select {
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			t.handlePartial(tr)
		case tr, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			// Apply partials already delivered ahead of this final, so an
			// empty provider final falls back to the complete accumulation.
			for drained := false; !drained && partials != nil; {
				select {
				case p, ok := <-partials:
					if !ok {
						partials = nil
					} else {
						t.handlePartial(p)
					}
				default:
					drained = true
				}
			}
			t.handleFinal(tr)
		}
	}
}

func (t *Transcriber) handlePartial(tr types.Transcript) {
	t.mu.Lock()
	t.partial.WriteString(tr.Text)
	accumulated := t.partial.String()
	t.mu.Unlock()

	t.sink.Send(clientevent.TranscriptionPartialEvent(accumulated))

	trimmed := strings.TrimSpace(tr.Text)
	if t.bargein != nil && len(trimmed) >= nonTrivialPartialMinLength {
		t.bargein.ObservePartial(trimmed)
	}
}

func (t *Transcriber) handleFinal(tr types.Transcript) {
	t.mu.Lock()
	accumulated := t.partial.String()
	t.partial.Reset()
	t.mu.Unlock()

	final := strings.TrimSpace(tr.Text)
	if final == "" {
		final = strings.TrimSpace(accumulated)
	}
	if final == "" {
		t.log.Debug("transcriber: discarding empty final transcript")
		return
	}

	t.sink.Send(clientevent.TranscriptionFinalEvent(final))

	select {
	case t.finals <- final:
	case <-t.done:
	}
}

// SendAudio forwards a client audio frame to the STT provider.
func (t *Transcriber) SendAudio(chunk []byte) error {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()
	if session == nil {
		return fmt.Errorf("transcriber: session not started")
	}
	return session.SendAudio(chunk)
}

// Close shuts down the STT session. Idempotent (§4.5's close semantics).
func (t *Transcriber) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	session := t.session
	t.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}
