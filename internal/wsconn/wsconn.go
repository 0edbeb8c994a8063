// Package wsconn implements [session.ClientChannel] over a websocket, using
// the client duplex-channel wire contract of spec §6: one JSON object per
// websocket text message, inbound tagged by "kind" and outbound tagged by "type".
package wsconn

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/internal/session"
	"github.com/auravox/core/pkg/types"
)

// mustSendBuffer bounds the queue of events that must never be dropped —
// audio and response frames (§5).
const mustSendBuffer = 64

// bestEffortBuffer bounds the queue of events that may be dropped under
// backpressure — alignment frames (§5).
const bestEffortBuffer = 16

// inboundBuffer bounds the queue of parsed client→core events.
const inboundBuffer = 32

// wireInbound is the JSON shape of one client→core frame.
type wireInbound struct {
	Kind            string            `json:"kind"`
	Text            string            `json:"text,omitempty"`
	Audio           string            `json:"audio,omitempty"` // base64
	Image           string            `json:"image,omitempty"` // base64
	ImageCapturedAt time.Time         `json:"imageCapturedAt,omitempty"`
	PurchaseType    string            `json:"purchaseType,omitempty"`
	PurchaseData    map[string]string `json:"purchaseData,omitempty"`
}

// wireOutbound is the JSON shape of one core→client frame.
type wireOutbound struct {
	Type    clientevent.Type `json:"type"`
	Payload map[string]any   `json:"payload"`
}

// Conn adapts a [*websocket.Conn] to [session.ClientChannel]. Safe for
// concurrent use; Send may be called from multiple goroutines (the
// Orchestrator and the TTS Streamer both push events during a turn).
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	inbound    chan session.InboundEvent
	mustSend   chan clientevent.Event
	bestEffort chan clientevent.Event
	closed     chan struct{}
}

// Compile-time interface check.
var _ session.ClientChannel = (*Conn)(nil)

// Accept upgrades an incoming HTTP request to a websocket connection and
// returns a ready-to-use [Conn]. The caller should call [Conn.Run] in a
// goroutine to begin pumping frames.
func Accept(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: accept: %w", err)
	}
	c := &Conn{
		ws:         ws,
		log:        log,
		inbound:    make(chan session.InboundEvent, inboundBuffer),
		mustSend:   make(chan clientevent.Event, mustSendBuffer),
		bestEffort: make(chan clientevent.Event, bestEffortBuffer),
		closed:     make(chan struct{}),
	}
	return c, nil
}

// Run pumps inbound and outbound frames until ctx is cancelled or the
// connection closes. It blocks; call it in its own goroutine.
func (c *Conn) Run(ctx context.Context) {
	go c.readLoop(ctx)
	c.writeLoop(ctx)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.inbound)
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			c.log.Debug("wsconn: read loop ending", "err", err)
			return
		}
		var frame wireInbound
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("wsconn: dropping unparsable inbound frame", "err", err)
			continue
		}
		ev, ok := toInboundEvent(frame)
		if !ok {
			c.log.Warn("wsconn: dropping inbound frame with unknown kind", "kind", frame.Kind)
			continue
		}
		select {
		case c.inbound <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func toInboundEvent(frame wireInbound) (session.InboundEvent, bool) {
	ev := session.InboundEvent{Kind: session.InboundKind(frame.Kind)}
	switch ev.Kind {
	case session.InboundAudioFrame:
		raw, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			return ev, false
		}
		ev.Audio = raw
	case session.InboundVisionImage:
		raw, err := base64.StdEncoding.DecodeString(frame.Image)
		if err != nil {
			return ev, false
		}
		ev.Image = raw
		ev.ImageCapturedAt = frame.ImageCapturedAt
	case session.InboundTextMessage:
		ev.Text = frame.Text
	case session.InboundPurchaseStatus:
		ev.PurchaseType = types.PurchaseStatus(frame.PurchaseType)
		ev.PurchaseData = frame.PurchaseData
	case session.InboundEnd:
	default:
		return ev, false
	}
	return ev, true
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case ev := <-c.mustSend:
			c.write(ctx, ev)
		case ev := <-c.bestEffort:
			c.write(ctx, ev)
		}
	}
}

func (c *Conn) write(ctx context.Context, ev clientevent.Event) {
	data, err := json.Marshal(wireOutbound{Type: ev.Type, Payload: ev.Payload})
	if err != nil {
		c.log.Warn("wsconn: failed to marshal outbound event", "type", ev.Type, "err", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		c.log.Debug("wsconn: write failed", "type", ev.Type, "err", err)
	}
}

// Send implements [clientevent.Sink]. Audio and response frames are always
// queued (blocking if the queue is full); alignment frames are dropped
// under backpressure rather than blocking the turn pipeline (§5).
func (c *Conn) Send(ev clientevent.Event) {
	if ev.Type == clientevent.TTSStreamAlignment {
		select {
		case c.bestEffort <- ev:
		default:
			c.log.Debug("wsconn: dropping alignment frame under backpressure")
		}
		return
	}
	select {
	case c.mustSend <- ev:
	case <-c.closed:
	}
}

// Inbound implements [session.ClientChannel].
func (c *Conn) Inbound() <-chan session.InboundEvent {
	return c.inbound
}

// Close implements [session.ClientChannel]. Idempotent.
func (c *Conn) Close() error {
	select {
	case <-c.closed:
		return nil
	default:
		close(c.closed)
	}
	return c.ws.Close(websocket.StatusNormalClosure, "session ended")
}
