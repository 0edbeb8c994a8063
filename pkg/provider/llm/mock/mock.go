// Package mock provides an in-process llm.Provider test double.
package mock

import (
	"context"

	"github.com/auravox/core/pkg/provider/llm"
	"github.com/auravox/core/pkg/types"
)

// Provider is a configurable llm.Provider test double.
type Provider struct {
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error
	StreamChunks     []llm.Chunk
	StreamErr        error
	TokenCount       int
	CountTokensErr   error
	ModelCapabilities types.ModelCapabilities

	CompleteCalls []llm.CompletionRequest
	StreamCalls   []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.CompleteCalls = append(p.CompleteCalls, req)
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	return p.CompleteResponse, nil
}

func (p *Provider) StreamCompletion(_ context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.StreamCalls = append(p.StreamCalls, req)
	if p.StreamErr != nil {
		return nil, p.StreamErr
	}
	ch := make(chan llm.Chunk, len(p.StreamChunks))
	for _, c := range p.StreamChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *Provider) CountTokens(_ []types.Message) (int, error) {
	if p.CountTokensErr != nil {
		return 0, p.CountTokensErr
	}
	return p.TokenCount, nil
}

func (p *Provider) Capabilities() types.ModelCapabilities {
	return p.ModelCapabilities
}
