package resilience

import (
	"context"

	"github.com/auravox/core/pkg/provider/tts"
	"github.com/auravox/core/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// SynthesizeStream consumes text fragments and returns a channel of audio bytes,
// trying the first healthy provider. Only the initial stream setup is covered by
// failover; mid-stream errors are the caller's responsibility.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// SynthesizeStreamWithAlignment behaves like SynthesizeStream but also returns
// per-character alignment events, trying the first healthy provider.
func (f *TTSFallback) SynthesizeStreamWithAlignment(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan tts.AlignmentEvent, error) {
	type result struct {
		audio <-chan []byte
		align <-chan tts.AlignmentEvent
	}
	r, err := ExecuteWithResult(f.group, func(p tts.Provider) (result, error) {
		audio, align, err := p.SynthesizeStreamWithAlignment(ctx, text, voice)
		return result{audio: audio, align: align}, err
	})
	if err != nil {
		return nil, nil, err
	}
	return r.audio, r.align, nil
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// CloneVoice creates a new voice profile using the first healthy provider.
func (f *TTSFallback) CloneVoice(ctx context.Context, samples [][]byte) (*types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*types.VoiceProfile, error) {
		return p.CloneVoice(ctx, samples)
	})
}
