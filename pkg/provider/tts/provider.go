// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a streaming speech synthesis service and presents a
// uniform interface. The primary entry point is SynthesizeStream, which
// accepts a channel of text fragments (sentence/length-boundary flushed by
// the TTS Streamer, C4) and returns a channel of raw PCM audio bytes as they
// become available, enabling low-latency pipelining between LLM token output
// and audio playback.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/auravox/core/pkg/types"
)

// AlignmentEvent carries per-character timing for a synthesized fragment,
// used to drive client-side caption/viseme display in lockstep with audio.
type AlignmentEvent struct {
	Characters      []string
	StartTimesMs    []float64
	DurationsMs     []float64
	Normalized      bool
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM audio byte slices as they are
	// synthesised. The returned audio channel is closed by the
	// implementation when all text has been synthesised or when ctx is
	// cancelled.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// SynthesizeStreamWithAlignment behaves like SynthesizeStream but also
	// returns a channel of per-character alignment events, one per flushed
	// fragment, for providers that report them (§4.4 item 4).
	SynthesizeStreamWithAlignment(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan AlignmentEvent, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// CloneVoice creates a new voice profile from the supplied audio samples.
	CloneVoice(ctx context.Context, samples [][]byte) (*types.VoiceProfile, error)
}
