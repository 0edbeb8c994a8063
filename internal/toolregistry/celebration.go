package toolregistry

import (
	"context"
	"fmt"
	"strings"

	"github.com/auravox/core/pkg/provider/llm"
	"github.com/auravox/core/pkg/types"
)

// maxCelebrationTokens bounds the dedicated short-prompt completion call
// that produces the post-style-generation celebratory line (§4.10 item 5).
const maxCelebrationTokens = 60

// LLMCelebrationGenerator implements [CelebrationGenerator] via a bounded,
// dedicated completion call — the same secondary-call shape the Barge-In
// Coordinator's interruption reply uses.
type LLMCelebrationGenerator struct {
	llm llm.Provider
}

// NewLLMCelebrationGenerator creates a generator backed by provider.
func NewLLMCelebrationGenerator(provider llm.Provider) *LLMCelebrationGenerator {
	return &LLMCelebrationGenerator{llm: provider}
}

// Celebrate produces a short, upbeat line describing the just-generated
// look, conditioned on the style prompt that produced it.
func (g *LLMCelebrationGenerator) Celebrate(ctx context.Context, prompt string) (string, error) {
	if g.llm == nil {
		return "", fmt.Errorf("toolregistry: no LLM provider configured for celebration")
	}
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []types.Message{{
			Role:    types.RoleUser,
			Content: types.TextContent(fmt.Sprintf("A new look was just generated from this request: %q. Describe it in one enthusiastic sentence, in character, as if presenting it to the user.", prompt)),
		}},
		Temperature: 0.8,
		MaxTokens:   maxCelebrationTokens,
	})
	if err != nil {
		return "", fmt.Errorf("toolregistry: celebration completion: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
