// Package mock provides an in-process tts.Provider test double.
package mock

import (
	"context"

	"github.com/auravox/core/pkg/provider/tts"
	"github.com/auravox/core/pkg/types"
)

// Provider is a configurable tts.Provider test double.
type Provider struct {
	SynthesizeChunks [][]byte
	SynthesizeErr    error
	ListVoicesResult []types.VoiceProfile
	ListVoicesErr    error
	CloneVoiceResult *types.VoiceProfile
	CloneVoiceErr    error

	SynthesizeStreamCalls []types.VoiceProfile
}

var _ tts.Provider = (*Provider)(nil)

func (p *Provider) SynthesizeStream(_ context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, voice)
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	go func() {
		for range text {
		}
	}()
	ch := make(chan []byte, len(p.SynthesizeChunks))
	for _, c := range p.SynthesizeChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *Provider) SynthesizeStreamWithAlignment(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan tts.AlignmentEvent, error) {
	audio, err := p.SynthesizeStream(ctx, text, voice)
	if err != nil {
		return nil, nil, err
	}
	alignCh := make(chan tts.AlignmentEvent)
	close(alignCh)
	return audio, alignCh, nil
}

func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.ListVoicesResult, nil
}

func (p *Provider) CloneVoice(_ context.Context, _ [][]byte) (*types.VoiceProfile, error) {
	if p.CloneVoiceErr != nil {
		return nil, p.CloneVoiceErr
	}
	return p.CloneVoiceResult, nil
}
