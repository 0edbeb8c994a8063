// Package types defines the shared domain types used across the avatar
// pipeline. They form the lingua franca between providers, the orchestrator,
// the session manager, and the transcript store, so that packages that must
// not import each other directly (to avoid cycles) can still agree on shapes.
package types

import "time"

// PersonaCategory enumerates the known persona archetypes. Only "stylist"
// changes orchestration behavior (it unlocks the style-generation tool and
// directive block); the others are otherwise-identical conversational
// personas.
type PersonaCategory string

const (
	CategoryStylist  PersonaCategory = "stylist"
	CategoryProducer PersonaCategory = "producer"
	CategoryFitness  PersonaCategory = "fitness"
	CategoryGeneric  PersonaCategory = "generic"
)

// ReferenceOutfit is a named, imaged garment attached to a stylist persona,
// selectable by the generate_style_suggestion tool for virtual try-on.
type ReferenceOutfit struct {
	ID          string
	Name        string
	Brand       string
	ImageURL    string
	Tags        []string
	Description string
}

// Persona is the read-only, process-wide configuration for a named agent.
// Personas are immutable for the lifetime of a session that references them.
type Persona struct {
	ID                  string
	DisplayName         string
	Category            PersonaCategory
	SystemPrompt        string
	VoiceID             string
	ReferenceOutfits    []ReferenceOutfit
	PreferredGenres     []string
	VisionCaptureIntervalMs int
}

// ContentKind discriminates the two shapes a Message's Content may take.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentParts
)

// PartKind discriminates the two kinds of Part within a multi-part Content.
type PartKind int

const (
	PartText PartKind = iota
	PartImage
)

// Part is one element of a multi-part message content list.
type Part struct {
	Kind PartKind
	Text string // set when Kind == PartText
	URL  string // set when Kind == PartImage
}

// Content is the tagged variant described in the design notes: either a
// plain string, or an ordered list of text/image parts. It replaces the
// source's dynamic string|list-of-parts|legacy-object shape.
type Content struct {
	Kind  ContentKind
	Text  string // valid when Kind == ContentText
	Parts []Part // valid when Kind == ContentParts
}

// TextContent builds a plain-text Content value.
func TextContent(s string) Content { return Content{Kind: ContentText, Text: s} }

// PartsContent builds a multi-part Content value.
func PartsContent(parts ...Part) Content { return Content{Kind: ContentParts, Parts: parts} }

// PlainText renders Content down to a single string, taking the first text
// part (or concatenating text parts) when the content is multi-part. It
// never returns image URLs.
func (c Content) PlainText() string {
	switch c.Kind {
	case ContentText:
		return c.Text
	case ContentParts:
		out := ""
		for _, p := range c.Parts {
			if p.Kind == PartText {
				if out != "" {
					out += " "
				}
				out += p.Text
			}
		}
		return out
	default:
		return ""
	}
}

// ImageURL returns the URL of the first image part, if any.
func (c Content) ImageURL() (string, bool) {
	if c.Kind != ContentParts {
		return "", false
	}
	for _, p := range c.Parts {
		if p.Kind == PartImage {
			return p.URL, true
		}
	}
	return "", false
}

// HasImage reports whether this content carries an image part.
func (c Content) HasImage() bool {
	_, ok := c.ImageURL()
	return ok
}

// MessageRole enumerates the transcript roles.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is a single entry in a session or cross-session transcript.
type Message struct {
	Role       MessageRole
	Content    Content
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
	Timestamp  time.Time
}

// ToolCall is a tool/function invocation requested by the LLM.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition describes a tool offered to the LLM.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	ID       string
	Name     string
	Provider string
	Metadata map[string]string
}

// Transcript is a speech-to-text result, partial or final, emitted by a
// Transcriber session (C5).
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64
	Words      []WordDetail
	Timestamp  time.Duration
	Duration   time.Duration
}

// WordDetail holds per-word timing/confidence when the STT provider reports it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	ContextWindow       int
	MaxOutputTokens     int
	SupportsToolCalling bool
	SupportsVision      bool
	SupportsStreaming   bool
}

// PurchaseStatus enumerates the purchase-funnel states (§3, C6). The core
// never advances this funnel itself; transitions arrive from the client.
type PurchaseStatus string

const (
	PurchaseIdle                 PurchaseStatus = "idle"
	PurchaseProductsDisplayed    PurchaseStatus = "products-displayed"
	PurchaseProductSelected      PurchaseStatus = "product-selected"
	PurchaseWalletConnecting     PurchaseStatus = "wallet-connecting"
	PurchaseWalletConnected      PurchaseStatus = "wallet-connected"
	PurchaseWalletDisconnected   PurchaseStatus = "wallet-disconnected"
	PurchaseCryptoInitiated      PurchaseStatus = "crypto-payment-initiated"
	PurchaseTransactionPending   PurchaseStatus = "transaction-pending"
	PurchaseTransactionConfirm   PurchaseStatus = "transaction-confirming"
	PurchaseExecuting            PurchaseStatus = "purchase-executing"
	PurchaseCompleted            PurchaseStatus = "purchase-completed"
	PurchaseFailed               PurchaseStatus = "purchase-failed"
	PurchaseInsufficientFunds    PurchaseStatus = "insufficient-funds"
	PurchasePriceExpired         PurchaseStatus = "price-expired"
	PurchaseTransactionFailed    PurchaseStatus = "transaction-failed"
)

// PurchaseFlowState is the per-session purchase-funnel snapshot (C6).
type PurchaseFlowState struct {
	Status    PurchaseStatus
	Data      map[string]string
	UpdatedAt time.Time
}

// VisionImage is the last image captured out-of-band from the client (§3).
type VisionImage struct {
	Bytes       []byte
	CapturedAt  time.Time
}

// Age reports how long ago the image was captured, relative to now.
func (v VisionImage) Age(now time.Time) time.Duration {
	if v.CapturedAt.IsZero() {
		return time.Duration(1<<62 - 1) // effectively "infinitely old"
	}
	return now.Sub(v.CapturedAt)
}

// InterruptionType enumerates why a short interruption reply is requested (§4.9).
type InterruptionType string

const (
	InterruptDuringSpeech   InterruptionType = "during_speech"
	InterruptDuringThinking InterruptionType = "during_thinking"
	InterruptFalseStart     InterruptionType = "false_start"
	InterruptClarification  InterruptionType = "clarification"
)
