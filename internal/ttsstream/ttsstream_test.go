package ttsstream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/pkg/provider/tts"
	"github.com/auravox/core/pkg/types"
)

func TestBuffer_FlushesOnSentenceTerminator(t *testing.T) {
	var buf Buffer
	flushed := buf.Append("Hello there.")
	if len(flushed) != 1 || flushed[0] != "Hello there." {
		t.Fatalf("got %v", flushed)
	}
	if buf.Flush() != "" {
		t.Fatal("expected buffer to be empty after sentence flush")
	}
}

func TestBuffer_FlushesOnLengthBoundary(t *testing.T) {
	var buf Buffer
	long := ""
	for i := 0; i < flushBoundaryLength; i++ {
		long += "a"
	}
	flushed := buf.Append(long)
	if len(flushed) != 1 {
		t.Fatalf("expected one flush at the length boundary, got %d", len(flushed))
	}
}

func TestBuffer_AccumulatesWithoutTerminator(t *testing.T) {
	var buf Buffer
	flushed := buf.Append("Hello")
	if len(flushed) != 0 {
		t.Fatalf("expected no flush yet, got %v", flushed)
	}
	if buf.Flush() != "Hello" {
		t.Fatal("expected Flush to return the accumulated partial")
	}
}

func TestPreprocess_ExpandsAbbreviations(t *testing.T) {
	got := Preprocess("Our CEO uses the UI daily")
	if got != "Our C E O uses the user interface daily." {
		t.Fatalf("got %q", got)
	}
}

func TestPreprocess_CollapsesEllipsis(t *testing.T) {
	got := Preprocess("Wait.....")
	if got != "Wait..." {
		t.Fatalf("got %q", got)
	}
}

func TestPreprocess_AppendsPeriodWhenMissing(t *testing.T) {
	got := Preprocess("no terminator here")
	if got != "no terminator here." {
		t.Fatalf("got %q", got)
	}
}

func TestPreprocess_LeavesExistingTerminatorAlone(t *testing.T) {
	got := Preprocess("already done!")
	if got != "already done!" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveVoice_PrefersPersonaVoice(t *testing.T) {
	v := ResolveVoice(&types.Persona{VoiceID: "voice-123"})
	if v.ID != "voice-123" {
		t.Fatalf("got %+v", v)
	}
}

func TestResolveVoice_DefaultsWhenNoPersona(t *testing.T) {
	v := ResolveVoice(nil)
	if v.ID != defaultVoiceID {
		t.Fatalf("got %+v", v)
	}
}

type stubSink struct {
	mu     sync.Mutex
	events []clientevent.Event
}

func (s *stubSink) Send(e clientevent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *stubSink) countType(typ clientevent.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type stubProvider struct {
	audioPerFragment int
	withAlignment    bool
	startErr         error
}

func (p *stubProvider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	return nil, nil
}

func (p *stubProvider) SynthesizeStreamWithAlignment(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan tts.AlignmentEvent, error) {
	if p.startErr != nil {
		return nil, nil, p.startErr
	}
	audio := make(chan []byte, 16)
	align := make(chan tts.AlignmentEvent, 16)
	go func() {
		defer close(audio)
		defer close(align)
		for range text {
			for i := 0; i < p.audioPerFragment; i++ {
				audio <- []byte("frame")
			}
			if p.withAlignment {
				align <- tts.AlignmentEvent{
					Characters:   []string{"h", "i"},
					StartTimesMs: []float64{0, 100},
					DurationsMs:  []float64{100, 100},
				}
			}
		}
	}()
	return audio, align, nil
}

func (p *stubProvider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) { return nil, nil }

func (p *stubProvider) CloneVoice(ctx context.Context, samples [][]byte) (*types.VoiceProfile, error) {
	return nil, nil
}

func TestStream_EmitsAudioAndAlignmentEvents(t *testing.T) {
	sink := &stubSink{}
	s := New(&stubProvider{audioPerFragment: 2, withAlignment: true}, nil)

	fragments := make(chan string, 1)
	fragments <- "hi there."
	close(fragments)

	firstChunk := false
	err := s.Stream(context.Background(), fragments, types.VoiceProfile{ID: "v1"}, sink, "avatar-1", func() { firstChunk = true })
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if !firstChunk {
		t.Fatal("expected onFirstChunk to fire")
	}
	if sink.countType(clientevent.TTSStream) != 2 {
		t.Fatalf("expected 2 audio events, got %d", sink.countType(clientevent.TTSStream))
	}
	if sink.countType(clientevent.TTSStreamAlignment) != 1 {
		t.Fatalf("expected 1 alignment event, got %d", sink.countType(clientevent.TTSStreamAlignment))
	}
}

func TestStream_SwallowsSynthesizeError(t *testing.T) {
	sink := &stubSink{}
	s := New(&stubProvider{startErr: errTestUpstream}, nil)

	fragments := make(chan string)
	close(fragments)

	err := s.Stream(context.Background(), fragments, types.VoiceProfile{}, sink, "avatar-1", nil)
	if err != nil {
		t.Fatalf("expected Stream to swallow the error, got %v", err)
	}
}

func TestStream_AlignmentSecondsConversion(t *testing.T) {
	sink := &stubSink{}
	s := New(&stubProvider{audioPerFragment: 0, withAlignment: true}, nil)

	fragments := make(chan string, 1)
	fragments <- "hi."
	close(fragments)

	_ = s.Stream(context.Background(), fragments, types.VoiceProfile{}, sink, "avatar-1", nil)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		if e.Type == clientevent.TTSStreamAlignment {
			starts := e.Payload["start_seconds"].([]float64)
			ends := e.Payload["end_seconds"].([]float64)
			if starts[0] != 0 || ends[0] != 0.1 {
				t.Fatalf("unexpected seconds conversion: start=%v end=%v", starts, ends)
			}
		}
	}
}

func TestStream_RespectsContextCancellation(t *testing.T) {
	sink := &stubSink{}
	s := New(&stubProvider{audioPerFragment: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	fragments := make(chan string)
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Stream(ctx, fragments, types.VoiceProfile{}, sink, "avatar-1", nil) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stream did not return promptly on cancelled context")
	}
}

var errTestUpstream = &testError{"upstream unavailable"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
