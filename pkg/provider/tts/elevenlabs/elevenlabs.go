// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface,
// including per-character alignment parsing for caption/viseme sync (§4.4).
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/auravox/core/pkg/provider/tts"
	"github.com/auravox/core/pkg/types"
	"github.com/coder/websocket"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesEndpoint   = "https://api.elevenlabs.io/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the audio output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the
// WebSocket. Alignment and NormalizedAlignment carry per-character timing;
// the teacher's original client ignored both.
type audioResponse struct {
	Audio               string           `json:"audio"`
	IsFinal             bool             `json:"isFinal"`
	Message             string           `json:"message,omitempty"`
	Alignment           *alignmentPacket `json:"alignment,omitempty"`
	NormalizedAlignment *alignmentPacket `json:"normalizedAlignment,omitempty"`
}

type alignmentPacket struct {
	Chars                  []string  `json:"chars"`
	CharStartTimesMs       []float64 `json:"charStartTimesMs"`
	CharDurationsMs        []float64 `json:"charDurationsMs"`
}

type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// SynthesizeStream opens a WebSocket to ElevenLabs, pipes text fragments from
// the text channel, and returns a channel emitting raw PCM audio chunks.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	audioCh, _, err := p.synthesize(ctx, text, voice, false)
	return audioCh, err
}

// SynthesizeStreamWithAlignment behaves like SynthesizeStream but also emits
// per-character alignment events as ElevenLabs reports them.
func (p *Provider) SynthesizeStreamWithAlignment(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan tts.AlignmentEvent, error) {
	return p.synthesize(ctx, text, voice, true)
}

func (p *Provider) synthesize(ctx context.Context, text <-chan string, voice types.VoiceProfile, withAlignment bool) (<-chan []byte, <-chan tts.AlignmentEvent, error) {
	if voice.ID == "" {
		return nil, nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, voice.ID, p.model)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	boi := boiMessage{
		Text: " ",
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey:     p.apiKey,
		OutputFormat: p.outputFormat,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	audioCh := make(chan []byte, 256)
	var alignCh chan tts.AlignmentEvent
	if withAlignment {
		alignCh = make(chan tts.AlignmentEvent, 64)
	}

	go func() {
		defer close(audioCh)
		if alignCh != nil {
			defer close(alignCh)
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			for {
				_, msg, err := conn.Read(ctx)
				if err != nil {
					return
				}
				var resp audioResponse
				if err := json.Unmarshal(msg, &resp); err != nil {
					continue
				}
				if alignCh != nil {
					if ev, ok := toAlignmentEvent(resp); ok {
						select {
						case alignCh <- ev:
						case <-ctx.Done():
							return
						}
					}
				}
				if resp.Audio == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err != nil {
					continue
				}
				select {
				case audioCh <- pcm:
				case <-ctx.Done():
					return
				}
			}
		}()

		vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
		for {
			select {
			case sentence, ok := <-text:
				if !ok {
					flush := textMessage{Text: ""}
					flushBytes, _ := json.Marshal(flush)
					_ = conn.Write(ctx, websocket.MessageText, flushBytes)
					<-readDone
					return
				}
				if sentence == "" {
					continue
				}
				payload := textMessage{Text: sentence, VoiceSettings: vs}
				vs = nil
				msgBytes, _ := json.Marshal(payload)
				if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, alignCh, nil
}

// toAlignmentEvent prefers the normalized alignment packet (stable
// per-character timing independent of punctuation expansion quirks) and
// falls back to the raw alignment packet.
func toAlignmentEvent(resp audioResponse) (tts.AlignmentEvent, bool) {
	pkt := resp.NormalizedAlignment
	normalized := true
	if pkt == nil {
		pkt = resp.Alignment
		normalized = false
	}
	if pkt == nil || len(pkt.Chars) == 0 {
		return tts.AlignmentEvent{}, false
	}
	return tts.AlignmentEvent{
		Characters:   pkt.Chars,
		StartTimesMs: pkt.CharStartTimesMs,
		DurationsMs:  pkt.CharDurationsMs,
		Normalized:   normalized,
	}, true
}

// ---- ListVoices ----

type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}

	return parseVoices(vr), nil
}

// CloneVoice is not implemented.
// TODO: implement voice cloning via POST /v1/voices/add
func (p *Provider) CloneVoice(_ context.Context, samples [][]byte) (*types.VoiceProfile, error) {
	_ = samples
	return nil, errors.New("elevenlabs: CloneVoice is not implemented")
}

// ---- helpers ----

func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return parseVoices(vr), nil
}

func parseVoices(vr voicesResponse) []types.VoiceProfile {
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}

func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

func buildURLForVoice(voiceID, model string) string {
	return fmt.Sprintf(wsEndpointFmt, voiceID, model)
}
