package transcript

import (
	"encoding/json"
	"fmt"

	"github.com/auravox/core/pkg/types"
)

// placeholderImageRemoved is substituted for every image part except the
// most recent one when [Assemble] builds history for the LLM (§3, §4.7
// step 2c).
const placeholderImageRemoved = "[Image content removed from history]"

// NormalizeLegacyContent converts a raw JSON content value read from
// storage into a [types.Content]. It accepts three shapes:
//
//   - a JSON string: becomes plain text.
//   - a JSON array of {kind, text} / {kind, url} parts: becomes multi-part
//     content.
//   - a legacy object `{type, data}` written by an older system
//     generation: rewritten to a descriptive string per §9 (workout_plan,
//     performance_analysis, exercise_event have dedicated phrasing;
//     unknown types become "[System event: {type}]").
func NormalizeLegacyContent(raw json.RawMessage) (types.Content, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return types.TextContent(s), nil
	}

	var parts []wireContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		out := make([]types.Part, 0, len(parts))
		for _, p := range parts {
			switch p.Kind {
			case "image":
				out = append(out, types.Part{Kind: types.PartImage, URL: p.URL})
			default:
				out = append(out, types.Part{Kind: types.PartText, Text: p.Text})
			}
		}
		return types.PartsContent(out...), nil
	}

	var legacy legacyEvent
	if err := json.Unmarshal(raw, &legacy); err == nil && legacy.Type != "" {
		return types.TextContent(describeLegacyEvent(legacy)), nil
	}

	return types.Content{}, fmt.Errorf("transcript: unrecognized content shape: %s", raw)
}

type wireContentPart struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

type legacyEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// describeLegacyEvent renders a legacy system-event object to the
// documented string form (§9).
func describeLegacyEvent(e legacyEvent) string {
	dataJSON, _ := json.Marshal(e.Data)
	switch e.Type {
	case "workout_plan":
		return fmt.Sprintf("Workout plan generated: %s", dataJSON)
	case "performance_analysis":
		return fmt.Sprintf("Performance analysis: %s", dataJSON)
	case "exercise_event":
		return fmt.Sprintf("Exercise event: %s", dataJSON)
	default:
		return fmt.Sprintf("[System event: %s]", e.Type)
	}
}

// Assemble builds the cross-session history the Conversation Orchestrator
// passes to the LLM (§4.2, §4.7 step 2, §9). It is a pure function over
// already-normalized messages (see [NormalizeLegacyContent] for the
// read-time normalization of legacy storage rows):
//
//   - preserves order.
//   - keeps the image part of only the most recent image-bearing message;
//     every earlier image-bearing message has its image part stripped to
//     its accompanying text, or to [placeholderImageRemoved] if it carried
//     no text.
func Assemble(raw []types.Message) []types.Message {
	lastImageIdx := -1
	for i, m := range raw {
		if m.Content.HasImage() {
			lastImageIdx = i
		}
	}

	out := make([]types.Message, len(raw))
	for i, m := range raw {
		if i == lastImageIdx || !m.Content.HasImage() {
			out[i] = m
			continue
		}
		out[i] = m
		out[i].Content = types.TextContent(stripImageText(m.Content))
	}
	return out
}

// stripImageText extracts the text accompanying an image-bearing message's
// content, falling back to the documented placeholder when there is none.
func stripImageText(c types.Content) string {
	text := c.PlainText()
	if text == "" {
		return placeholderImageRemoved
	}
	return text
}
