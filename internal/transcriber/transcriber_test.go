package transcriber

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/auravox/core/internal/bargein"
	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/pkg/provider/stt"
	"github.com/auravox/core/pkg/types"
)

type stubSink struct {
	mu     sync.Mutex
	events []clientevent.Event
}

func (s *stubSink) Send(e clientevent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *stubSink) typed(typ clientevent.Type) []clientevent.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []clientevent.Event
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type stubSession struct {
	partials chan types.Transcript
	finals   chan types.Transcript
	sent     chan []byte
	closed   chan struct{}
	closeErr error
}

func newStubSession() *stubSession {
	return &stubSession{
		partials: make(chan types.Transcript, 8),
		finals:   make(chan types.Transcript, 8),
		sent:     make(chan []byte, 8),
		closed:   make(chan struct{}),
	}
}

func (s *stubSession) SendAudio(chunk []byte) error {
	s.sent <- chunk
	return nil
}
func (s *stubSession) Partials() <-chan types.Transcript { return s.partials }
func (s *stubSession) Finals() <-chan types.Transcript   { return s.finals }
func (s *stubSession) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
		close(s.partials)
		close(s.finals)
	}
	return s.closeErr
}

type stubProvider struct {
	session *stubSession
	gotCfg  stt.StreamConfig
}

func (p *stubProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.gotCfg = cfg
	return p.session, nil
}

func drainFinals(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var out []string
	for i := 0; i < n; i++ {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatalf("finals channel closed early after %d", len(out))
			}
			out = append(out, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for final %d", i)
		}
	}
	return out
}

func TestStart_UsesFixedSessionConfig(t *testing.T) {
	sess := newStubSession()
	p := &stubProvider{session: sess}
	tr := New(p, &stubSink{}, nil, nil)

	if _, err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if p.gotCfg.SampleRate != 16000 || p.gotCfg.Channels != 1 || p.gotCfg.Language != "en" {
		t.Fatalf("unexpected session config: %+v", p.gotCfg)
	}
	if p.gotCfg.Turn.Threshold != 0.3 || p.gotCfg.Turn.PrefixPaddingMs != 300 || p.gotCfg.Turn.SilenceDurationMs != 500 {
		t.Fatalf("unexpected turn detection config: %+v", p.gotCfg.Turn)
	}
}

func TestFinal_PrefersProviderFinalText(t *testing.T) {
	sess := newStubSession()
	sink := &stubSink{}
	tr := New(&stubProvider{session: sess}, sink, nil, nil)
	finals, _ := tr.Start(context.Background())

	sess.partials <- types.Transcript{Text: "hel"}
	sess.finals <- types.Transcript{Text: "hello there", IsFinal: true}

	got := drainFinals(t, finals, 1)
	if got[0] != "hello there" {
		t.Fatalf("got %q", got[0])
	}
	if len(sink.typed(clientevent.TranscriptionFinal)) != 1 {
		t.Fatal("expected one transcription_final event")
	}
}

func TestFinal_FallsBackToAccumulatedPartials(t *testing.T) {
	sess := newStubSession()
	tr := New(&stubProvider{session: sess}, &stubSink{}, nil, nil)
	finals, _ := tr.Start(context.Background())

	sess.partials <- types.Transcript{Text: "hel"}
	sess.partials <- types.Transcript{Text: "lo"}
	sess.finals <- types.Transcript{Text: ""}

	got := drainFinals(t, finals, 1)
	if got[0] != "hello" {
		t.Fatalf("got %q", got[0])
	}
}

func TestFinal_EmptyIsDiscarded(t *testing.T) {
	sess := newStubSession()
	tr := New(&stubProvider{session: sess}, &stubSink{}, nil, nil)
	finals, _ := tr.Start(context.Background())

	sess.finals <- types.Transcript{Text: "   "}
	sess.finals <- types.Transcript{Text: "real one"}

	got := drainFinals(t, finals, 1)
	if got[0] != "real one" {
		t.Fatalf("expected the empty final to be skipped, got %q", got[0])
	}
}

func TestPartial_TriggersBargeInWhenAvatarSpeaking(t *testing.T) {
	sess := newStubSession()
	sink := &stubSink{}
	coord := bargein.New(sink, "avatar-1")
	coord.NotifyTTSChunk()

	tr := New(&stubProvider{session: sess}, sink, coord, nil)
	if _, err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.partials <- types.Transcript{Text: "stop right there"}

	deadline := time.After(time.Second)
	for {
		if len(sink.typed(clientevent.UserSpoke)) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for user_spoke event")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if coord.AvatarSpeaking() {
		t.Fatal("expected avatarSpeaking to be cleared")
	}
}

func TestPartial_TrivialDoesNotTriggerBargeIn(t *testing.T) {
	sess := newStubSession()
	sink := &stubSink{}
	coord := bargein.New(sink, "avatar-1")
	coord.NotifyTTSChunk()

	tr := New(&stubProvider{session: sess}, sink, coord, nil)
	tr.Start(context.Background())

	sess.partials <- types.Transcript{Text: "h"}
	sess.finals <- types.Transcript{Text: "flush"}
	drainFinals(t, tr.finals, 1)

	if len(sink.typed(clientevent.UserSpoke)) != 0 {
		t.Fatal("expected no user_spoke event for a trivial partial")
	}
	if !coord.AvatarSpeaking() {
		t.Fatal("expected avatarSpeaking to remain set")
	}
}

func TestSendAudio_ForwardsToSession(t *testing.T) {
	sess := newStubSession()
	tr := New(&stubProvider{session: sess}, &stubSink{}, nil, nil)
	tr.Start(context.Background())

	if err := tr.SendAudio([]byte{1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	select {
	case got := <-sess.sent:
		if len(got) != 3 {
			t.Fatalf("got %v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded audio")
	}
}

func TestSendAudio_BeforeStart_Errors(t *testing.T) {
	tr := New(&stubProvider{session: newStubSession()}, &stubSink{}, nil, nil)
	if err := tr.SendAudio([]byte{1}); err == nil {
		t.Fatal("expected error sending audio before Start")
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	sess := newStubSession()
	tr := New(&stubProvider{session: sess}, &stubSink{}, nil, nil)
	tr.Start(context.Background())

	if err := tr.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
