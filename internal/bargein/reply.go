package bargein

import (
	"context"
	"fmt"
	"strings"

	"github.com/auravox/core/pkg/provider/llm"
	"github.com/auravox/core/pkg/types"
)

// maxInterruptionReplyTokens bounds the dedicated short-prompt completion
// path used for interruption replies (§4.9).
const maxInterruptionReplyTokens = 50

var interruptionToneHints = map[types.InterruptionType]string{
	types.InterruptDuringSpeech:   "You were cut off mid-sentence while speaking. React briefly to being interrupted.",
	types.InterruptDuringThinking: "You were about to respond but the user spoke again first. Acknowledge it briefly.",
	types.InterruptFalseStart:     "You started to speak but it turned out the user wasn't finished talking. Give a brief apology for jumping in.",
	types.InterruptClarification:  "The user interrupted to clarify or correct something. Briefly acknowledge you're listening.",
}

// ReplyGenerator produces the short interruption reply (≤ a few words) an
// avatar speaks when it is barged in on, via a dedicated bounded completion
// call, falling back to a fixed canned sentence on any failure (§4.9).
type ReplyGenerator struct {
	llm llm.Provider
}

// NewReplyGenerator creates a ReplyGenerator backed by provider.
func NewReplyGenerator(provider llm.Provider) *ReplyGenerator {
	return &ReplyGenerator{llm: provider}
}

// Generate produces a short interruption reply conditioned on kind and the
// persona's tone. It falls back to one of InterruptionFallbacks, chosen
// deterministically from kind, whenever the completion call errors or
// returns empty text.
func (g *ReplyGenerator) Generate(ctx context.Context, kind types.InterruptionType, persona *types.Persona) string {
	if g.llm == nil {
		return g.fallback(kind)
	}

	hint := interruptionToneHints[kind]
	if hint == "" {
		hint = interruptionToneHints[types.InterruptDuringSpeech]
	}

	systemPrompt := hint + " Respond with a few words only, in character, no punctuation beyond a single exclamation or period."
	if persona != nil && persona.SystemPrompt != "" {
		systemPrompt = persona.SystemPrompt + "\n\n" + systemPrompt
	}

	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		Messages:     []types.Message{{Role: types.RoleUser, Content: types.TextContent(fmt.Sprintf("(interrupted: %s)", kind))}},
		SystemPrompt: systemPrompt,
		Temperature:  0.8,
		MaxTokens:    maxInterruptionReplyTokens,
	})
	if err != nil {
		return g.fallback(kind)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return g.fallback(kind)
	}
	return text
}

// fallback picks a deterministic entry from InterruptionFallbacks so the
// same interruption kind reliably produces the same canned line.
func (g *ReplyGenerator) fallback(kind types.InterruptionType) string {
	idx := 0
	for i, k := range []types.InterruptionType{
		types.InterruptDuringSpeech,
		types.InterruptDuringThinking,
		types.InterruptFalseStart,
		types.InterruptClarification,
	} {
		if k == kind {
			idx = i
			break
		}
	}
	return InterruptionFallbacks[idx%len(InterruptionFallbacks)]
}
