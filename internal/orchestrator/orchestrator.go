// Package orchestrator implements the Conversation Orchestrator (C7): the
// central per-turn pipeline that assembles a prompt from persona, history,
// and purchase-flow state, streams an LLM completion, dispatches tool
// calls, drives the TTS sink, and persists the transcript (§4.7).
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/auravox/core/internal/apperr"
	"github.com/auravox/core/internal/bargein"
	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/internal/persona"
	"github.com/auravox/core/internal/purchaseflow"
	"github.com/auravox/core/internal/toolregistry"
	"github.com/auravox/core/internal/transcript"
	"github.com/auravox/core/internal/ttsstream"
	"github.com/auravox/core/internal/turn"
	"github.com/auravox/core/pkg/provider/llm"
	"github.com/auravox/core/pkg/types"
)

// completionTimeout bounds the whole LLM stream (§4.7 step 5).
const completionTimeout = 30 * time.Second

const (
	completionTemperature      = 0.7
	completionMaxTokens        = 500
	completionPresencePenalty  = 0.1
	completionFrequencyPenalty = 0.1
)

// Dependencies are the Orchestrator's collaborators.
type Dependencies struct {
	Personas   persona.Store
	History    transcript.Store
	LLM        llm.Provider
	TTS        *ttsstream.Streamer
	Tools      *toolregistry.Dispatcher
	Purchase   purchaseflow.StateTracker
	BargeIn    *bargein.Coordinator
	Log        *slog.Logger

	// ProductPurchaseEnabled gates the get_trending_products tool (§4.7
	// step 4).
	ProductPurchaseEnabled bool
}

// Request carries one turn's input. UserMessage is text or a list of parts
// (text + at most one image).
type Request struct {
	SessionID   string
	UserID      string
	PersonaID   string
	UserMessage types.Content
	Proactive   bool

	VisionImageURL   string
	VisionImageFresh bool

	Sink     clientevent.Sink
	AvatarID string

	// Handle is the TurnHandle the Session Manager created for this turn;
	// the Orchestrator derives its 30s completion timeout from it and
	// reports cancellation through it (§3, §5).
	Handle *turn.Handle
}

// Orchestrator implements the respond operation (§4.7).
type Orchestrator struct {
	deps Dependencies
}

// New creates an Orchestrator.
func New(deps Dependencies) *Orchestrator {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Orchestrator{deps: deps}
}

// Respond implements the full §4.7 algorithm and returns the final
// assistant text.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (string, error) {
	var (
		p             *types.Persona
		history       []types.Message
		historyErr    error
		purchaseState types.PurchaseFlowState
		purchaseErr   error
	)

	// Persona lookup, cross-session history assembly, and the current
	// purchase-flow state are independent reads; fetch them concurrently
	// (§4.7 steps 1-3). Only the persona lookup is fatal — a failed history
	// or purchase-flow read degrades to an empty/idle default instead,
	// mirroring the teacher's hot-context assembler.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		found, err := o.deps.Personas.Lookup(egCtx, req.PersonaID)
		if err != nil {
			return err
		}
		p = found
		return nil
	})
	eg.Go(func() error {
		history, historyErr = o.assembleHistory(egCtx, req.UserID, req.PersonaID)
		return nil
	})
	eg.Go(func() error {
		purchaseState, purchaseErr = o.currentPurchaseState(egCtx, req.SessionID)
		return nil
	})
	if err := eg.Wait(); err != nil {
		req.Sink.Send(clientevent.LLMResponseErrorEvent(apperr.PersonaMissing.Error(), req.AvatarID))
		return "", fmt.Errorf("orchestrator: %w", apperr.PersonaMissing)
	}
	if historyErr != nil {
		o.deps.Log.Warn("orchestrator: history assembly failed, continuing with empty history", "session_id", req.SessionID, "err", historyErr)
	}
	if purchaseErr != nil {
		o.deps.Log.Warn("orchestrator: purchase-flow lookup failed", "session_id", req.SessionID, "err", purchaseErr)
	}

	systemPrompt := assembleSystemPrompt(p, purchaseState)
	tools := toolregistry.Catalog(p, o.deps.ProductPurchaseEnabled)

	messages := append(history, types.Message{Role: types.RoleUser, Content: req.UserMessage})

	handleCtx := ctx
	if req.Handle != nil {
		handleCtx = req.Handle.Context()
	}
	turnCtx, cancel := context.WithTimeout(handleCtx, completionTimeout)
	defer cancel()

	if o.deps.BargeIn != nil && req.Handle != nil {
		o.deps.BargeIn.BeginTurn(req.Handle)
	}

	req.Sink.Send(clientevent.LLMResponseStartEvent(req.AvatarID))

	result, err := o.stream(turnCtx, messages, systemPrompt, tools, p, req)

	if o.deps.BargeIn != nil {
		o.deps.BargeIn.EndTurn()
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			req.Sink.Send(clientevent.LLMResponseErrorEvent(apperr.UpstreamTimeout.Error(), req.AvatarID))
			return apperr.CannedApology, nil
		}
		if req.Handle != nil && req.Handle.IsBargeIn() {
			// Barge-in never surfaces llm_response_error (§5).
			return "", nil
		}
		req.Sink.Send(clientevent.LLMResponseErrorEvent(err.Error(), req.AvatarID))
		return apperr.CannedApology, nil
	}

	if req.Handle != nil && req.Handle.IsBargeIn() {
		return "", nil
	}

	o.persistTranscript(ctx, req, result.Text)

	return result.Text, nil
}

// assembleHistory implements §4.7 step 2.
func (o *Orchestrator) assembleHistory(ctx context.Context, userID, personaID string) ([]types.Message, error) {
	raw, err := o.deps.History.HistoryFor(ctx, userID, personaID)
	if err != nil {
		return nil, err
	}
	return transcript.Assemble(raw), nil
}

func (o *Orchestrator) currentPurchaseState(ctx context.Context, sessionID string) (types.PurchaseFlowState, error) {
	if o.deps.Purchase == nil {
		return types.PurchaseFlowState{Status: types.PurchaseIdle}, nil
	}
	return o.deps.Purchase.Get(ctx, sessionID)
}

// streamResult is the outcome of consuming one LLM stream.
type streamResult struct {
	Text string
}

// stream implements §4.7 steps 5-6: streams the completion, forwards text
// deltas to the client and TTS sink, and dispatches tool calls on
// tool_calls finish.
func (o *Orchestrator) stream(ctx context.Context, messages []types.Message, systemPrompt string, tools []types.ToolDefinition, p *types.Persona, req Request) (streamResult, error) {
	chunks, err := o.deps.LLM.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:         messages,
		Tools:            tools,
		Temperature:      completionTemperature,
		MaxTokens:        completionMaxTokens,
		SystemPrompt:     systemPrompt,
		PresencePenalty:  completionPresencePenalty,
		FrequencyPenalty: completionFrequencyPenalty,
	})
	if err != nil {
		return streamResult{}, fmt.Errorf("orchestrator: start completion stream: %w", err)
	}

	var accumulated strings.Builder
	var pendingToolCall *types.ToolCall

	fragments := make(chan string)
	ttsDone := make(chan struct{})
	if o.deps.TTS != nil {
		go func() {
			defer close(ttsDone)
			var onFirstChunk func()
			if o.deps.BargeIn != nil {
				onFirstChunk = o.deps.BargeIn.NotifyTTSChunk
			}
			_ = o.deps.TTS.Stream(ctx, fragments, ttsstream.ResolveVoice(p), req.Sink, req.AvatarID, onFirstChunk)
		}()
	} else {
		close(ttsDone)
	}
	var buf ttsstream.Buffer
	sendFragment := func(frag string) {
		if o.deps.TTS == nil {
			return
		}
		select {
		case fragments <- frag:
		case <-ctx.Done():
		}
	}

	finishReason := ""
loop:
	for {
		select {
		case <-ctx.Done():
			close(fragments)
			<-ttsDone
			if req.Handle != nil && req.Handle.IsBargeIn() {
				return streamResult{}, errBargeIn
			}
			return streamResult{}, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			if chunk.Text != "" {
				accumulated.WriteString(chunk.Text)
				req.Sink.Send(clientevent.LLMResponseChunkEvent(chunk.Text, req.AvatarID))
				for _, frag := range buf.Append(chunk.Text) {
					sendFragment(frag)
				}
			}
			if len(chunk.ToolCalls) > 0 {
				pendingToolCall = accumulateToolCall(pendingToolCall, chunk.ToolCalls[0])
			}
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
				break loop
			}
		}
	}

	if remainder := buf.Flush(); remainder != "" {
		sendFragment(remainder)
	}
	close(fragments)
	<-ttsDone

	finalText := accumulated.String()

	switch finishReason {
	case "tool_calls":
		if pendingToolCall != nil {
			tc := sanitizeToolCallArguments(*pendingToolCall)
			if override, handled := o.deps.Tools.Dispatch(ctx, tc, toolregistry.TurnContext{
				SessionID:           req.SessionID,
				Persona:             p,
				VisionImageURL:      req.VisionImageURL,
				VisionImageFresh:    req.VisionImageFresh,
				History:             messages,
				Sink:                req.Sink,
				AvatarID:            req.AvatarID,
				GeneratingMessageID: tc.ID,
				LeadInText:          finalText,
			}); handled {
				finalText = override
			}
		}
	case "error":
		return streamResult{}, fmt.Errorf("orchestrator: %w", apperr.UpstreamError)
	}

	req.Sink.Send(clientevent.LLMResponseCompleteEvent(finalText, req.AvatarID, nil))
	return streamResult{Text: finalText}, nil
}

var errBargeIn = errors.New("orchestrator: turn cancelled by barge-in")

// accumulateToolCall merges a streamed tool-call delta into the
// in-progress call: the first non-empty name wins, arguments concatenate
// (§4.7 step 6).
func accumulateToolCall(existing *types.ToolCall, delta types.ToolCall) *types.ToolCall {
	if existing == nil {
		existing = &types.ToolCall{}
	}
	if existing.ID == "" && delta.ID != "" {
		existing.ID = delta.ID
	}
	if existing.Name == "" && delta.Name != "" {
		existing.Name = delta.Name
	}
	existing.Arguments += delta.Arguments
	return existing
}

// sanitizeToolCallArguments best-effort repairs a tool call's arguments
// buffer: if it is not valid JSON but contains a `}{` boundary, the first
// balanced object is kept and the rest discarded (§4.7 step 6).
func sanitizeToolCallArguments(tc types.ToolCall) types.ToolCall {
	if json.Valid([]byte(tc.Arguments)) {
		return tc
	}
	if obj, ok := firstBalancedObject(tc.Arguments); ok {
		tc.Arguments = obj
	}
	return tc
}

// firstBalancedObject scans s for the first brace-balanced JSON object,
// used to salvage truncated/concatenated tool-call argument buffers.
func firstBalancedObject(s string) (string, bool) {
	depth := 0
	start := -1
	for i, r := range s {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// persistTranscript implements §4.7 step 7.
func (o *Orchestrator) persistTranscript(ctx context.Context, req Request, assistantText string) {
	var messages []types.Message
	if !req.Proactive {
		messages = append(messages, types.Message{Role: types.RoleUser, Content: req.UserMessage, Timestamp: time.Now()})
	}
	messages = append(messages, types.Message{Role: types.RoleAssistant, Content: types.TextContent(assistantText), Timestamp: time.Now()})

	if err := o.deps.History.Append(ctx, req.SessionID, messages); err != nil {
		o.deps.Log.Warn("orchestrator: transcript append failed", "session_id", req.SessionID, "err", err)
	}
}
