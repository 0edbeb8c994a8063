package toolregistry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/internal/styleimage"
	"github.com/auravox/core/pkg/types"
)

type stubSink struct {
	events []clientevent.Event
}

func (s *stubSink) Send(e clientevent.Event) { s.events = append(s.events, e) }

type stubStyle struct {
	result  styleimage.Result
	err     error
	gotURL  string
	gotRefs []string
}

func (s *stubStyle) GenerateStyle(_ context.Context, imageURL, _, _, _ string, refs []string) (styleimage.Result, error) {
	s.gotURL = imageURL
	s.gotRefs = refs
	if s.err != nil {
		return styleimage.Result{}, s.err
	}
	return s.result, nil
}

type stubLog struct {
	recorded bool
}

func (s *stubLog) Record(_ context.Context, _, _, _, _, _ string, _ time.Time) error {
	s.recorded = true
	return nil
}

type stubCelebration struct {
	text string
	err  error
}

func (s *stubCelebration) Celebrate(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

type stubProducts struct {
	products []Product
	err      error
}

func (s *stubProducts) FetchTrending(_ context.Context) ([]Product, error) {
	return s.products, s.err
}

type stubTracker struct {
	lastStatus types.PurchaseStatus
}

func (s *stubTracker) Set(_ context.Context, _ string, status types.PurchaseStatus, _ map[string]string) error {
	s.lastStatus = status
	return nil
}

func fixedClock() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func stylistPersona(outfits ...types.ReferenceOutfit) *types.Persona {
	return &types.Persona{ID: "persona-1", Category: types.CategoryStylist, ReferenceOutfits: outfits}
}

func TestDispatch_UnknownTool_ReturnsUnhandled(t *testing.T) {
	d := New(Dependencies{Clock: fixedClock})
	_, handled := d.Dispatch(context.Background(), types.ToolCall{Name: "unknown_tool"}, TurnContext{})
	if handled {
		t.Error("expected unknown tool to be unhandled")
	}
}

func TestGenerateStyleSuggestion_NonStylistPersona_Rejected(t *testing.T) {
	d := New(Dependencies{Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{SessionID: "sess-1", Persona: &types.Persona{Category: types.CategoryGeneric}, Sink: sink}
	text, handled := d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: "{}"}, tc)
	if !handled {
		t.Fatal("expected handled=true")
	}
	if text != noOutfitImageApology {
		t.Errorf("expected rejection apology, got %q", text)
	}
}

func TestGenerateStyleSuggestion_NoInputImage_ReturnsApology(t *testing.T) {
	style := &stubStyle{}
	d := New(Dependencies{Style: style, Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{SessionID: "sess-1", Persona: stylistPersona(), Sink: sink}
	args, _ := json.Marshal(generateStyleSuggestionArgs{SuggestionPrompt: "blue jacket"})

	text, handled := d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: string(args)}, tc)
	if !handled {
		t.Fatal("expected handled=true")
	}
	if text != noOutfitImageApology {
		t.Errorf("expected no-image apology, got %q", text)
	}
	if style.gotURL != "" {
		t.Error("expected GenerateStyle not to be called without an input image")
	}
}

func TestGenerateStyleSuggestion_UsesFreshVisionImage(t *testing.T) {
	style := &stubStyle{result: styleimage.Result{GeneratedURL: "https://cdn/gen.png", ModelUsed: "m"}}
	log := &stubLog{}
	celebration := &stubCelebration{text: "You look amazing!"}
	d := New(Dependencies{Style: style, StyleLog: log, Celebration: celebration, Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{
		SessionID:        "sess-1",
		Persona:          stylistPersona(),
		VisionImageURL:   "http://localhost:9000/vision/sess-1",
		VisionImageFresh: true,
		Sink:             sink,
		GeneratingMessageID: "msg-1",
	}
	args, _ := json.Marshal(generateStyleSuggestionArgs{SuggestionPrompt: "blue jacket"})

	text, handled := d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: string(args)}, tc)
	if !handled {
		t.Fatal("expected handled=true")
	}
	if style.gotURL != tc.VisionImageURL {
		t.Errorf("expected vision image URL forwarded, got %q", style.gotURL)
	}
	if text != "You look amazing!" {
		t.Errorf("expected celebratory text, got %q", text)
	}
	if !log.recorded {
		t.Error("expected style generation to be logged")
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events (feedback + completion), got %d", len(sink.events))
	}
	if sink.events[0].Type != clientevent.LLMResponseComplete || sink.events[0].Payload["styleGeneration"].(*clientevent.StyleGeneration).Type != "feedback" {
		t.Errorf("expected first event to be feedback, got %+v", sink.events[0])
	}
	if sink.events[1].Payload["styleGeneration"].(*clientevent.StyleGeneration).Type != "completion" {
		t.Errorf("expected second event to be completion, got %+v", sink.events[1])
	}
}

func TestGenerateStyleSuggestion_FallsBackToHistoryImage(t *testing.T) {
	style := &stubStyle{result: styleimage.Result{GeneratedURL: "https://cdn/gen.png"}}
	d := New(Dependencies{Style: style, Clock: fixedClock})
	sink := &stubSink{}
	history := []types.Message{
		{Role: types.RoleUser, Content: types.TextContent("hello")},
		{Role: types.RoleUser, Content: types.PartsContent(types.Part{Kind: types.PartImage, URL: "https://hist/old.png"})},
		{Role: types.RoleUser, Content: types.PartsContent(types.Part{Kind: types.PartImage, URL: "https://hist/latest.png"})},
	}
	tc := TurnContext{SessionID: "sess-1", Persona: stylistPersona(), History: history, Sink: sink}
	args, _ := json.Marshal(generateStyleSuggestionArgs{SuggestionPrompt: "x"})

	_, handled := d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: string(args)}, tc)
	if !handled {
		t.Fatal("expected handled=true")
	}
	if style.gotURL != "https://hist/latest.png" {
		t.Errorf("expected most recent history image, got %q", style.gotURL)
	}
}

func TestGenerateStyleSuggestion_ReferenceOutfitByIndex(t *testing.T) {
	style := &stubStyle{result: styleimage.Result{GeneratedURL: "https://cdn/gen.png"}}
	outfits := []types.ReferenceOutfit{
		{Name: "Blue Suit", ImageURL: "https://ref/blue.png"},
		{Name: "Red Dress", ImageURL: "https://ref/red.png"},
	}
	d := New(Dependencies{Style: style, Clock: fixedClock})
	sink := &stubSink{}
	idx := 1
	tc := TurnContext{
		SessionID: "sess-1", Persona: stylistPersona(outfits...),
		VisionImageURL: "http://localhost/v", VisionImageFresh: true, Sink: sink,
	}
	args, _ := json.Marshal(generateStyleSuggestionArgs{SuggestionPrompt: "x", UseReferenceOutfit: true, ReferenceOutfitIndex: &idx})

	_, _ = d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: string(args)}, tc)
	if len(style.gotRefs) != 1 || style.gotRefs[0] != "https://ref/red.png" {
		t.Errorf("expected reference outfit by index, got %+v", style.gotRefs)
	}
}

func TestGenerateStyleSuggestion_ReferenceOutfitFuzzyMatch(t *testing.T) {
	style := &stubStyle{result: styleimage.Result{GeneratedURL: "https://cdn/gen.png"}}
	outfits := []types.ReferenceOutfit{
		{Name: "Blue Suit", Brand: "Acme", ImageURL: "https://ref/blue.png"},
		{Name: "Red Dress", Brand: "Zephyr", ImageURL: "https://ref/red.png"},
	}
	d := New(Dependencies{Style: style, Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{
		SessionID: "sess-1", Persona: stylistPersona(outfits...),
		VisionImageURL: "http://localhost/v", VisionImageFresh: true, Sink: sink,
	}
	args, _ := json.Marshal(generateStyleSuggestionArgs{SuggestionPrompt: "show me in the acme one", UseReferenceOutfit: true})

	_, _ = d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: string(args)}, tc)
	if len(style.gotRefs) != 1 || style.gotRefs[0] != "https://ref/blue.png" {
		t.Errorf("expected brand-matched outfit, got %+v", style.gotRefs)
	}
}

func TestGenerateStyleSuggestion_UpstreamFailure_EmitsErrorEvent(t *testing.T) {
	style := &stubStyle{err: errors.New("model down")}
	d := New(Dependencies{Style: style, Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{
		SessionID: "sess-1", Persona: stylistPersona(),
		VisionImageURL: "http://localhost/v", VisionImageFresh: true, Sink: sink,
	}
	args, _ := json.Marshal(generateStyleSuggestionArgs{SuggestionPrompt: "x"})

	text, _ := d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: string(args)}, tc)
	if text == "" {
		t.Error("expected a non-empty apology text on failure")
	}
	foundErrorEvent := false
	for _, e := range sink.events {
		if e.Type == clientevent.StyleSuggestionError {
			foundErrorEvent = true
		}
	}
	if !foundErrorEvent {
		t.Error("expected a style_suggestion_error event")
	}
}

func TestGenerateStyleSuggestion_CelebrationFailure_UsesFallback(t *testing.T) {
	style := &stubStyle{result: styleimage.Result{GeneratedURL: "https://cdn/gen.png"}}
	celebration := &stubCelebration{err: errors.New("llm down")}
	d := New(Dependencies{Style: style, Celebration: celebration, Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{
		SessionID: "sess-1", Persona: stylistPersona(),
		VisionImageURL: "http://localhost/v", VisionImageFresh: true, Sink: sink,
	}
	args, _ := json.Marshal(generateStyleSuggestionArgs{SuggestionPrompt: "x"})

	text, _ := d.Dispatch(context.Background(), types.ToolCall{Name: GenerateStyleSuggestion, Arguments: string(args)}, tc)
	if text != fallbackCelebration {
		t.Errorf("expected fallback celebration text, got %q", text)
	}
}

func TestGetTrendingProducts_TransitionsPurchaseFlow(t *testing.T) {
	products := &stubProducts{products: []Product{{Name: "Jacket", Price: "$80"}}}
	tracker := &stubTracker{}
	d := New(Dependencies{Products: products, Tracker: tracker, Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{SessionID: "sess-1", Sink: sink}

	text, handled := d.Dispatch(context.Background(), types.ToolCall{Name: GetTrendingProducts}, tc)
	if !handled {
		t.Fatal("expected handled=true")
	}
	if tracker.lastStatus != types.PurchaseProductsDisplayed {
		t.Errorf("expected purchase flow transitioned to products-displayed, got %q", tracker.lastStatus)
	}
	if len(sink.events) != 1 || sink.events[0].Type != clientevent.ProductsDisplay {
		t.Fatalf("expected a products-display event, got %+v", sink.events)
	}
	if text == "" {
		t.Error("expected a non-empty templated response")
	}
}

func TestGetTrendingProducts_EmptyList_CannedSentence(t *testing.T) {
	products := &stubProducts{products: nil}
	d := New(Dependencies{Products: products, Clock: fixedClock})
	sink := &stubSink{}
	tc := TurnContext{SessionID: "sess-1", Sink: sink}

	text, _ := d.Dispatch(context.Background(), types.ToolCall{Name: GetTrendingProducts}, tc)
	if text != "There aren't any trending products available right now." {
		t.Errorf("unexpected canned sentence: %q", text)
	}
}
