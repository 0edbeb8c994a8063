// Package session implements the Session Manager (C8): it owns the client
// duplex channel, one Transcriber, one current TurnHandle, the
// last-vision-image slot, and the Purchase-Flow Tracker entry for a single
// connected client (§4.8).
package session

import (
	"time"

	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/pkg/types"
)

// InboundKind enumerates the client→core event kinds (§6).
type InboundKind string

const (
	InboundAudioFrame     InboundKind = "audio-frame"
	InboundVisionImage    InboundKind = "vision-image"
	InboundTextMessage    InboundKind = "text-message"
	InboundPurchaseStatus InboundKind = "purchase-status"
	InboundEnd            InboundKind = "end"
)

// InboundEvent is one client→core event, tagged by Kind; only the fields
// relevant to that Kind are populated.
type InboundEvent struct {
	Kind InboundKind

	Audio []byte

	Image           []byte
	ImageCapturedAt time.Time

	Text string

	PurchaseType types.PurchaseStatus
	PurchaseData map[string]string
}

// ClientChannel is the client duplex channel abstraction (§6, SPEC_FULL
// §2): an inbound event stream plus a bounded, backpressure-aware outbound
// sender. A websocket, a WebRTC data channel, or an in-process test harness
// can all implement it.
//
// ClientChannel implements [clientevent.Sink]. Implementations must apply a
// drop-newest policy to outbound tts_stream_alignment frames under
// backpressure while never dropping tts_stream (audio) frames (§5).
type ClientChannel interface {
	clientevent.Sink

	// Inbound returns the channel of events arriving from the client. The
	// channel is closed when the underlying transport disconnects.
	Inbound() <-chan InboundEvent

	// Close terminates the channel. Idempotent.
	Close() error
}
