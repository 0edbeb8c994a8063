package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/internal/styleimage"
	"github.com/auravox/core/pkg/types"
)

const noOutfitImageApology = "I need to see your current outfit first — could you show me?"

// StyleGenerator is the subset of internal/styleimage.Client the dispatcher
// needs.
type StyleGenerator interface {
	GenerateStyle(ctx context.Context, imageURL, prompt, sessionID, personaID string, referenceImageURLs []string) (styleimage.Result, error)
}

// StyleLogger persists a style-generation record (§4.10 item 5).
type StyleLogger interface {
	Record(ctx context.Context, sessionID, personaID, originalURL, generatedURL, prompt string, at time.Time) error
}

// Product is one trending-product entry (§4.10's "opaque" product shape,
// §6 note).
type Product struct {
	Name  string
	Price string
	URL   string
}

// ProductsFetcher fetches the current trending product list.
type ProductsFetcher interface {
	FetchTrending(ctx context.Context) ([]Product, error)
}

// CelebrationGenerator produces the short celebratory sentence that
// accompanies a completed style generation (§4.10 item 5's "secondary
// bounded LLM call").
type CelebrationGenerator interface {
	Celebrate(ctx context.Context, prompt string) (string, error)
}

// Tracker is the subset of internal/purchaseflow.StateTracker the
// dispatcher needs.
type Tracker interface {
	Set(ctx context.Context, sessionID string, status types.PurchaseStatus, dataPartial map[string]string) error
}

// Dependencies are the Dispatcher's collaborators.
type Dependencies struct {
	Style       StyleGenerator
	StyleLog    StyleLogger
	Tracker     Tracker
	Products    ProductsFetcher
	Celebration CelebrationGenerator
	Clock       func() time.Time
}

// Dispatcher executes tool calls dispatched by the Conversation Orchestrator
// on a `tool_calls` finish reason.
type Dispatcher struct {
	deps Dependencies
}

// New creates a Dispatcher.
func New(deps Dependencies) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Dispatcher{deps: deps}
}

// TurnContext carries the per-turn, per-session state a tool dispatch needs
// that the Dispatcher itself does not own.
//
// VisionImageURL is the local URL the Session Manager serves the session's
// last captured vision image from (a `localhost`/`127.0.0.1` address, per
// §4.3's local-host special case, since raw VisionImage bytes are not
// themselves a URL); VisionImageFresh reports whether that image is within
// the tool-invoked staleness window (§3's VisionImage policy), as computed
// by the caller against its own clock.
type TurnContext struct {
	SessionID           string
	Persona             *types.Persona
	VisionImageURL      string
	VisionImageFresh    bool
	History             []types.Message
	Sink                clientevent.Sink
	AvatarID            string
	GeneratingMessageID string
	LeadInText          string
}

// generateStyleSuggestionArgs is the argument shape of the
// generate_style_suggestion tool call.
type generateStyleSuggestionArgs struct {
	SuggestionPrompt     string `json:"suggestion_prompt"`
	UseReferenceOutfit   bool   `json:"use_reference_outfit"`
	ReferenceOutfitIndex *int   `json:"reference_outfit_index,omitempty"`
}

// Dispatch executes call and returns the override assistant text (if any)
// and whether the tool name was recognized. Unknown tool names return
// ("", false): the caller should fall through as if no tool call occurred
// (§4.10's closing rule).
func (d *Dispatcher) Dispatch(ctx context.Context, call types.ToolCall, tc TurnContext) (string, bool) {
	switch call.Name {
	case GenerateStyleSuggestion:
		return d.generateStyleSuggestion(ctx, call, tc), true
	case GetTrendingProducts:
		return d.getTrendingProducts(ctx, tc), true
	default:
		return "", false
	}
}

func (d *Dispatcher) generateStyleSuggestion(ctx context.Context, call types.ToolCall, tc TurnContext) string {
	if tc.Persona == nil || tc.Persona.Category != types.CategoryStylist || tc.SessionID == "" {
		return noOutfitImageApology
	}

	var args generateStyleSuggestionArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		tc.sendError(fmt.Sprintf("could not parse style request: %v", err))
		return "I had trouble understanding that style request."
	}

	imageURL, ok := d.resolveInputImage(tc)
	if !ok {
		return noOutfitImageApology
	}

	var referenceImageURLs []string
	if args.UseReferenceOutfit && len(tc.Persona.ReferenceOutfits) > 0 {
		outfit := selectReferenceOutfit(tc.Persona.ReferenceOutfits, args.ReferenceOutfitIndex, args.SuggestionPrompt)
		referenceImageURLs = []string{outfit.ImageURL}
	}

	tc.Sink.Send(clientevent.LLMResponseCompleteEvent(tc.LeadInText, tc.AvatarID, &clientevent.StyleGeneration{
		Type:                "feedback",
		GeneratingMessageID: tc.GeneratingMessageID,
		Prompt:              args.SuggestionPrompt,
	}))

	result, err := d.deps.Style.GenerateStyle(ctx, imageURL, args.SuggestionPrompt, tc.SessionID, tc.Persona.ID, referenceImageURLs)
	if err != nil {
		tc.sendError(err.Error())
		return "I wasn't able to generate that look just now — let's try again in a moment."
	}

	if d.deps.StyleLog != nil {
		_ = d.deps.StyleLog.Record(ctx, tc.SessionID, tc.Persona.ID, imageURL, result.GeneratedURL, args.SuggestionPrompt, d.deps.Clock())
	}

	description := d.celebrate(ctx, args.SuggestionPrompt)

	tc.Sink.Send(clientevent.LLMResponseCompleteEvent(description, tc.AvatarID, &clientevent.StyleGeneration{
		Type:                "completion",
		GeneratingMessageID: tc.GeneratingMessageID,
		ImageURL:            result.GeneratedURL,
		Description:         description,
	}))

	return description
}

const fallbackCelebration = "Here's your new look!"

func (d *Dispatcher) celebrate(ctx context.Context, prompt string) string {
	if d.deps.Celebration == nil {
		return fallbackCelebration
	}
	text, err := d.deps.Celebration.Celebrate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return fallbackCelebration
	}
	return text
}

// resolveInputImage implements §4.10 item 2: prefer the session's
// last-vision-image slot if fresh enough, else the most recent
// image-bearing message in history, else report failure.
func (d *Dispatcher) resolveInputImage(tc TurnContext) (string, bool) {
	if tc.VisionImageFresh && tc.VisionImageURL != "" {
		return tc.VisionImageURL, true
	}
	for i := len(tc.History) - 1; i >= 0; i-- {
		if url, ok := tc.History[i].Content.ImageURL(); ok {
			return url, true
		}
	}
	return "", false
}

// selectReferenceOutfit implements §4.10 item 3's selection rule: explicit
// index when in range, else fuzzy-match the prompt against brand (highest
// weight), then name, then tags, then description words, else the first
// outfit.
func selectReferenceOutfit(outfits []types.ReferenceOutfit, index *int, prompt string) types.ReferenceOutfit {
	if index != nil && *index >= 0 && *index < len(outfits) {
		return outfits[*index]
	}

	best := outfits[0]
	bestScore := -1.0
	for _, outfit := range outfits {
		score := fuzzyScore(prompt, outfit)
		if score > bestScore {
			bestScore = score
			best = outfit
		}
	}
	return best
}

// fuzzyScore weights brand highest, then name, then tags, then description
// words, summing Jaro-Winkler similarity against the prompt at each tier.
func fuzzyScore(prompt string, outfit types.ReferenceOutfit) float64 {
	prompt = strings.ToLower(prompt)
	var score float64
	if outfit.Brand != "" {
		score += 4 * matchr.JaroWinkler(prompt, strings.ToLower(outfit.Brand), false)
	}
	if outfit.Name != "" {
		score += 2 * matchr.JaroWinkler(prompt, strings.ToLower(outfit.Name), false)
	}
	for _, tag := range outfit.Tags {
		if s := matchr.JaroWinkler(prompt, strings.ToLower(tag), false); s > 0 {
			score += s
		}
	}
	for _, word := range strings.Fields(outfit.Description) {
		if s := matchr.JaroWinkler(prompt, strings.ToLower(word), false); s > 0 {
			score += 0.5 * s
		}
	}
	return score
}

func (d *Dispatcher) getTrendingProducts(ctx context.Context, tc TurnContext) string {
	if d.deps.Tracker != nil {
		_ = d.deps.Tracker.Set(ctx, tc.SessionID, types.PurchaseProductsDisplayed, nil)
	}

	products, err := d.deps.Products.FetchTrending(ctx)
	if err != nil || len(products) == 0 {
		tc.Sink.Send(clientevent.ProductsDisplayEvent(nil, tc.SessionID, d.deps.Clock().Unix()))
		return "There aren't any trending products available right now."
	}

	payload := make([]map[string]any, 0, len(products))
	for _, p := range products {
		payload = append(payload, map[string]any{"name": p.Name, "price": p.Price, "url": p.URL})
	}
	tc.Sink.Send(clientevent.ProductsDisplayEvent(payload, tc.SessionID, d.deps.Clock().Unix()))

	return templateProductList(products)
}

func templateProductList(products []Product) string {
	var b strings.Builder
	b.WriteString("Here's what's trending right now: ")
	for i, p := range products {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Price != "" {
			b.WriteString(" (")
			b.WriteString(p.Price)
			b.WriteString(")")
		}
	}
	b.WriteString(".")
	return b.String()
}

func (tc TurnContext) sendError(msg string) {
	tc.Sink.Send(clientevent.StyleSuggestionErrorEvent(tc.AvatarID, msg))
}

// Compile-time interface checks.
var (
	_ StyleGenerator = (*styleimage.Client)(nil)
	_ StyleLogger    = (*styleimage.Log)(nil)
)
