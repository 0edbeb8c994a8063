// Package openai provides an STT provider backed by the OpenAI Realtime API.
// It is the primary Transcriber (C5) backend: its session.update event
// carries a turn_detection object whose shape (threshold, prefix padding,
// silence duration) is exactly what the Transcriber's fixed server-side VAD
// configuration requires. The session/read-loop/write-loop structure mirrors
// pkg/provider/stt/deepgram.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/auravox/core/pkg/provider/stt"
	"github.com/auravox/core/pkg/types"
	"github.com/coder/websocket"
)

const (
	realtimeEndpointFmt = "wss://api.openai.com/v1/realtime?model=%s"
	defaultModel         = "gpt-4o-realtime-preview"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Realtime model ID.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// Provider implements stt.Provider backed by the OpenAI Realtime API,
// configured for transcription-only use (no assistant audio output).
type Provider struct {
	apiKey string
	model  string
}

// New creates a new Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{apiKey: apiKey, model: defaultModel}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// sessionUpdate configures a Realtime session for transcription-only use.
type sessionUpdate struct {
	Type    string      `json:"type"`
	Session sessionBody `json:"session"`
}

type sessionBody struct {
	Modalities        []string          `json:"modalities"`
	InputAudioFormat  string            `json:"input_audio_format"`
	TurnDetection     *turnDetectionCfg `json:"turn_detection"`
	InputAudioTranscription map[string]string `json:"input_audio_transcription"`
}

type turnDetectionCfg struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

// inputAudioAppend streams a base64-encoded PCM16 chunk into the session buffer.
type inputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// serverEvent is the minimal envelope for any Realtime server event this
// provider cares about.
type serverEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	Delta      string `json:"delta"`
}

// StartStream opens a Realtime session configured with cfg's turn-detection
// parameters. Audio must be PCM16 mono at the rate OpenAI expects (24kHz);
// chunks are forwarded as given, with no resampling.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL := fmt.Sprintf(realtimeEndpointFmt, p.model)
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+p.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	upd := sessionUpdate{
		Type: "session.update",
		Session: sessionBody{
			Modalities:       []string{"text"},
			InputAudioFormat: "pcm16",
			TurnDetection: &turnDetectionCfg{
				Type:              "server_vad",
				Threshold:         cfg.Turn.Threshold,
				PrefixPaddingMs:   cfg.Turn.PrefixPaddingMs,
				SilenceDurationMs: cfg.Turn.SilenceDurationMs,
			},
			InputAudioTranscription: map[string]string{"model": "whisper-1"},
		},
	}
	updBytes, _ := json.Marshal(upd)
	if err := conn.Write(ctx, websocket.MessageText, updBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send session.update")
		return nil, fmt.Errorf("openai: send session.update: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

type session struct {
	conn     *websocket.Conn
	partials chan types.Transcript
	finals   chan types.Transcript
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("openai: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("openai: session is closed")
	}
}

func (s *session) Partials() <-chan types.Transcript { return s.partials }
func (s *session) Finals() <-chan types.Transcript   { return s.finals }

// Close terminates the session cleanly. Safe to call more than once, and
// safe to call while the dial is still in flight (the caller defers Close
// immediately after StartStream returns, before any audio is sent).
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			msg := inputAudioAppend{
				Type:  "input_audio_buffer.append",
				Audio: base64.StdEncoding.EncodeToString(chunk),
			}
			b, _ := json.Marshal(msg)
			if err := s.conn.Write(ctx, websocket.MessageText, b); err != nil {
				return
			}
		case <-s.done:
			// Flush audio queued before Close.
			for {
				select {
				case chunk := <-s.audio:
					b, _ := json.Marshal(inputAudioAppend{
						Type:  "input_audio_buffer.append",
						Audio: base64.StdEncoding.EncodeToString(chunk),
					})
					if err := s.conn.Write(ctx, websocket.MessageText, b); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var ev serverEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "conversation.item.input_audio_transcription.delta":
			select {
			case s.partials <- types.Transcript{Text: ev.Delta, IsFinal: false}:
			case <-s.done:
			}
		case "conversation.item.input_audio_transcription.completed":
			select {
			case s.finals <- types.Transcript{Text: ev.Transcript, IsFinal: true}:
			case <-s.done:
			}
		}
	}
}
