// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a real-time transcription service (a hosted duplex
// WebSocket API) and exposes a uniform streaming interface. The central
// abstraction is SessionHandle: once opened, a session accepts raw PCM audio
// frames and emits two streams of types.Transcript values — low-latency
// partials for barge-in detection and authoritative finals for the
// orchestrator and transcript store.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/auravox/core/pkg/types"
)

// TurnDetection configures server-side voice-activity turn detection. The
// Transcriber (C5) always opens sessions with the same fixed values
// (threshold 0.3, 300ms prefix padding, 500ms silence duration per §4.5).
type TurnDetection struct {
	Threshold         float64
	PrefixPaddingMs   int
	SilenceDurationMs int
}

// StreamConfig describes the audio format and turn-detection parameters for a
// new STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The Transcriber always uses
	// PCM16 mono at 16000 Hz.
	SampleRate int

	// Channels is the number of audio channels (always 1, mono).
	Channels int

	// Language is the BCP-47 language tag for recognition. The Transcriber
	// always requests English.
	Language string

	// Turn carries the fixed server-side VAD configuration.
	Turn TurnDetection
}

// SessionHandle represents an open STT streaming session. It is an interface
// so that test code can provide in-process implementations without a live
// provider connection.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of low-latency interim
	// transcripts, used to detect barge-in. The channel is closed when the
	// session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel of authoritative transcripts —
	// these drive the orchestrator and are persisted to the transcript
	// store. The channel is closed when the session ends.
	Finals() <-chan types.Transcript

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously, one per client session.
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and turn-detection configuration. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.,
	// authentication failure or ctx already cancelled). The caller owns the
	// SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
