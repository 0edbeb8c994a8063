package bargein

import (
	"context"
	"errors"
	"testing"

	"github.com/auravox/core/pkg/provider/llm"
	"github.com/auravox/core/pkg/types"
)

type stubLLM struct {
	response *llm.CompletionResponse
	err      error
}

func (s *stubLLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (s *stubLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.response, nil
}

func (s *stubLLM) CountTokens(messages []types.Message) (int, error) { return 0, nil }

func (s *stubLLM) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }

func TestReplyGenerator_UsesCompletionText(t *testing.T) {
	g := NewReplyGenerator(&stubLLM{response: &llm.CompletionResponse{Content: "Whoops, sorry!"}})
	got := g.Generate(context.Background(), types.InterruptDuringSpeech, nil)
	if got != "Whoops, sorry!" {
		t.Fatalf("got %q", got)
	}
}

func TestReplyGenerator_FallsBackOnError(t *testing.T) {
	g := NewReplyGenerator(&stubLLM{err: errors.New("upstream down")})
	got := g.Generate(context.Background(), types.InterruptDuringSpeech, nil)

	found := false
	for _, f := range InterruptionFallbacks {
		if got == f {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a fallback sentence, got %q", got)
	}
}

func TestReplyGenerator_FallsBackOnEmptyText(t *testing.T) {
	g := NewReplyGenerator(&stubLLM{response: &llm.CompletionResponse{Content: "   "}})
	got := g.Generate(context.Background(), types.InterruptClarification, nil)
	if got == "" {
		t.Fatal("expected a non-empty fallback")
	}
}

func TestReplyGenerator_NilProviderFallsBack(t *testing.T) {
	g := NewReplyGenerator(nil)
	got := g.Generate(context.Background(), types.InterruptFalseStart, nil)
	if got == "" {
		t.Fatal("expected a non-empty fallback")
	}
}

func TestReplyGenerator_DeterministicFallbackPerKind(t *testing.T) {
	g := NewReplyGenerator(&stubLLM{err: errors.New("down")})
	a := g.Generate(context.Background(), types.InterruptDuringThinking, nil)
	b := g.Generate(context.Background(), types.InterruptDuringThinking, nil)
	if a != b {
		t.Fatalf("expected deterministic fallback, got %q then %q", a, b)
	}
}

func TestReplyGenerator_UsesPersonaSystemPrompt(t *testing.T) {
	called := false
	g := NewReplyGenerator(&fnLLM{complete: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		called = true
		if req.SystemPrompt == "" {
			t.Fatal("expected a non-empty system prompt")
		}
		return &llm.CompletionResponse{Content: "Oh!"}, nil
	}})
	persona := &types.Persona{SystemPrompt: "You are Aria, an upbeat stylist."}
	g.Generate(context.Background(), types.InterruptDuringSpeech, persona)
	if !called {
		t.Fatal("expected Complete to be called")
	}
}

type fnLLM struct {
	complete func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (f *fnLLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (f *fnLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return f.complete(ctx, req)
}

func (f *fnLLM) CountTokens(messages []types.Message) (int, error) { return 0, nil }

func (f *fnLLM) Capabilities() types.ModelCapabilities { return types.ModelCapabilities{} }
