// Package ttsstream implements the TTS Streamer (C4): buffers incremental
// LLM text into flush-sized fragments, preprocesses each fragment, and
// streams it to a TTS provider, re-emitting audio and alignment frames to
// the client as they arrive (§4.4).
package ttsstream

import (
	"context"
	"encoding/base64"
	"log/slog"
	"regexp"
	"strings"

	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/pkg/provider/tts"
	"github.com/auravox/core/pkg/types"
)

// flushBoundaryLength is the length-based flush boundary used when no
// sentence terminator has arrived yet (§4.4).
const flushBoundaryLength = 120

// defaultVoiceID is used when a persona specifies no voice.
const defaultVoiceID = "default"

// abbreviations is the fixed preprocessing expansion table (§4.4 item 1).
var abbreviations = map[string]string{
	"UI":   "user interface",
	"API":  "A P I",
	"CEO":  "C E O",
	"CTO":  "C T O",
	"VC":   "venture capital",
	"SaaS": "Software as a Service",
	"AI":   "artificial intelligence",
	"ML":   "machine learning",
}

var abbreviationPattern = buildAbbreviationPattern()

func buildAbbreviationPattern() *regexp.Regexp {
	words := make([]string, 0, len(abbreviations))
	for k := range abbreviations {
		words = append(words, regexp.QuoteMeta(k))
	}
	return regexp.MustCompile(`\b(` + strings.Join(words, "|") + `)\b`)
}

var ellipsisPattern = regexp.MustCompile(`[.!?]{2,}`)

var sentenceTerminators = ".!?"

// Streamer owns one flush-and-synthesize pipeline per turn.
type Streamer struct {
	provider tts.Provider
	log      *slog.Logger
}

// New creates a Streamer backed by provider.
func New(provider tts.Provider, log *slog.Logger) *Streamer {
	if log == nil {
		log = slog.Default()
	}
	return &Streamer{provider: provider, log: log}
}

// Buffer accumulates LLM text deltas and flushes complete fragments on a
// sentence terminator or a length boundary (§4.4).
type Buffer struct {
	b strings.Builder
}

// Append adds a text delta to the buffer and returns any fragments ready to
// flush (zero, one, or more — a single delta may contain multiple sentence
// boundaries).
func (buf *Buffer) Append(delta string) []string {
	var flushed []string
	for _, r := range delta {
		buf.b.WriteRune(r)
		if strings.ContainsRune(sentenceTerminators, r) || buf.b.Len() >= flushBoundaryLength {
			flushed = append(flushed, buf.b.String())
			buf.b.Reset()
		}
	}
	return flushed
}

// Flush returns and clears any remaining partial fragment, for use at the
// end of a stream.
func (buf *Buffer) Flush() string {
	s := buf.b.String()
	buf.b.Reset()
	return s
}

// Preprocess applies the fixed abbreviation-expansion table, collapses
// punctuation runs (a run of two becomes ".", three or more become "..."),
// and appends a period if the fragment
// ends without sentence punctuation (§4.4 item 1).
func Preprocess(fragment string) string {
	fragment = abbreviationPattern.ReplaceAllStringFunc(fragment, func(m string) string {
		return abbreviations[m]
	})
	fragment = ellipsisPattern.ReplaceAllStringFunc(fragment, func(m string) string {
		if len(m) >= 3 {
			return "..."
		}
		return "."
	})
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return trimmed
	}
	last := trimmed[len(trimmed)-1]
	if !strings.ContainsRune(sentenceTerminators, rune(last)) {
		trimmed += "."
	}
	return trimmed
}

// ResolveVoice picks persona's configured voice or a fixed default (§4.4
// item 2).
func ResolveVoice(persona *types.Persona) types.VoiceProfile {
	if persona != nil && persona.VoiceID != "" {
		return types.VoiceProfile{ID: persona.VoiceID}
	}
	return types.VoiceProfile{ID: defaultVoiceID}
}

// Stream consumes fragments, synthesizes them through the TTS provider, and
// emits tts_stream / tts_stream_alignment events to sink as frames arrive.
// onFirstChunk, if non-nil, is called exactly once when the first audio
// frame is emitted — the Interrupt/Barge-In Coordinator's NotifyTTSChunk
// hook per §4.9.
func (s *Streamer) Stream(ctx context.Context, fragments <-chan string, voice types.VoiceProfile, sink clientevent.Sink, avatarID string, onFirstChunk func()) error {
	preprocessed := make(chan string)
	go func() {
		defer close(preprocessed)
		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-fragments:
				if !ok {
					return
				}
				clean := Preprocess(frag)
				if clean == "" {
					continue
				}
				select {
				case preprocessed <- clean:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	audio, alignment, err := s.provider.SynthesizeStreamWithAlignment(ctx, preprocessed, voice)
	if err != nil {
		// Flush/synthesis errors are logged and swallowed; they never
		// terminate the turn (§4.4 item 5).
		s.log.Warn("ttsstream: synthesize stream failed", "error", err)
		return nil
	}

	fired := false
	for audio != nil || alignment != nil {
		select {
		case frame, ok := <-audio:
			if !ok {
				audio = nil
				continue
			}
			if !fired && onFirstChunk != nil {
				fired = true
				onFirstChunk()
			}
			sink.Send(clientevent.TTSStreamEvent(encodeBase64(frame), avatarID))
		case a, ok := <-alignment:
			if !ok {
				alignment = nil
				continue
			}
			startSeconds, endSeconds := alignmentSeconds(a)
			sink.Send(clientevent.TTSStreamAlignmentEvent(a.Characters, startSeconds, endSeconds, avatarID))
		case <-ctx.Done():
			s.log.Debug("ttsstream: flush interrupted", "reason", ctx.Err())
			return nil
		}
	}
	return nil
}

func encodeBase64(frame []byte) string {
	return base64.StdEncoding.EncodeToString(frame)
}

// alignmentSeconds converts a provider alignment event's millisecond
// start/duration pairs into the start_seconds/end_seconds arrays the client
// contract expects (§6).
func alignmentSeconds(a tts.AlignmentEvent) (start, end []float64) {
	start = make([]float64, len(a.StartTimesMs))
	end = make([]float64, len(a.StartTimesMs))
	for i, s := range a.StartTimesMs {
		start[i] = s / 1000
		d := 0.0
		if i < len(a.DurationsMs) {
			d = a.DurationsMs[i]
		}
		end[i] = (s + d) / 1000
	}
	return start, end
}
