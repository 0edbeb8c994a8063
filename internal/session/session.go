package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/auravox/core/internal/bargein"
	"github.com/auravox/core/internal/clientevent"
	"github.com/auravox/core/internal/orchestrator"
	"github.com/auravox/core/internal/purchaseflow"
	"github.com/auravox/core/internal/transcript"
	"github.com/auravox/core/internal/turn"
	"github.com/auravox/core/pkg/types"
)

// inlineVisionTTL is how long a captured vision image stays eligible for
// inline attachment to the next turn's user message (§3).
const inlineVisionTTL = 30 * time.Second

// onDemandVisionTTL is how long a captured vision image stays eligible for
// the generate_style_suggestion tool's on-demand lookup (§4.10 item 2).
const onDemandVisionTTL = 5 * time.Minute

// turnQueueDepth bounds how many pending finals the turn runner will queue
// before the session applies backpressure to its own event loop.
const turnQueueDepth = 8

// transcriberHandle is the subset of *transcriber.Transcriber the Manager
// needs, narrowed so tests can supply a fake without a real STT provider.
type transcriberHandle interface {
	Start(ctx context.Context) (<-chan string, error)
	SendAudio(chunk []byte) error
	Close() error
}

// Info holds metadata about an active session, mirroring the teacher's
// SessionInfo shape.
type Info struct {
	SessionID string
	UserID    string
	PersonaID string
	StartedAt time.Time
	EndedAt   time.Time
}

// Config holds the Manager's dependencies (§4.8).
type Config struct {
	SessionID string
	UserID    string
	PersonaID string
	AvatarID  string

	Channel      ClientChannel
	Transcriber  transcriberHandle
	BargeIn      *bargein.Coordinator
	Orchestrator *orchestrator.Orchestrator
	Purchase     purchaseflow.StateTracker
	History      transcript.Store

	// VisionImages, if non-nil, serves the last-vision-image slot's bytes
	// over a local HTTP address so toolregistry.TurnContext.VisionImageURL
	// can reference it (§4.10 item 2's image-bearing message requirement).
	VisionImages VisionImageServer

	Log *slog.Logger

	// Clock, if set, overrides time.Now (tests only).
	Clock func() time.Time
}

// VisionImageServer publishes the session's current vision-image bytes at a
// local URL a tool dispatch can pass to a downstream image API, and revokes
// the previous URL when the bytes are replaced (§3, SPEC_FULL §B's
// local-HTTP-serving note for C10's VisionImageURL).
type VisionImageServer interface {
	// Publish stores bytes under a freshly minted path and returns the URL
	// they are now reachable at.
	Publish(sessionID string, bytes []byte) (url string)
}

// visionImageReleaser is an optional capability of a VisionImageServer:
// implementations that allocate per-session resources (an HTTP route, a
// temp file) can free them when the session ends. Registered as a closer
// in Start, mirroring the teacher's mixer/agent closers.
type visionImageReleaser interface {
	Release(sessionID string) error
}

// Manager is the Session Manager (C8). It owns the client duplex channel,
// one Transcriber, one current TurnHandle, the last-vision-image slot, and
// the Purchase-Flow Tracker entry for one connected client.
//
// Safe for concurrent use; Stop is idempotent.
type Manager struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	active  bool
	info    Info
	current *activeTurn
	vision  types.VisionImage
	cancel  context.CancelFunc

	closers []func() error

	turns chan turnJob
	wg    sync.WaitGroup
}

type activeTurn struct {
	handle *turn.Handle
}

type turnJob struct {
	userText  string
	proactive bool
}

// New creates a Manager. Call Start to begin processing.
func New(cfg Config) *Manager {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg: cfg,
		log: cfg.Log,
		now: now,
	}
}

// Start begins the session's event loop: opening the Transcriber session
// and consuming client channel events until ctx is cancelled or the client
// sends an explicit end (§4.8).
//
// Start blocks until the session ends; callers typically run it in its own
// goroutine per connected client.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return fmt.Errorf("session: %s: already active", m.cfg.SessionID)
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	m.active = true
	m.cancel = cancel
	m.info = Info{SessionID: m.cfg.SessionID, UserID: m.cfg.UserID, PersonaID: m.cfg.PersonaID, StartedAt: m.now()}
	m.turns = make(chan turnJob, turnQueueDepth)
	if releaser, ok := m.cfg.VisionImages.(visionImageReleaser); ok {
		m.closers = append(m.closers, func() error { return releaser.Release(m.cfg.SessionID) })
	}
	m.mu.Unlock()

	var finals <-chan string
	if m.cfg.Transcriber != nil {
		f, err := m.cfg.Transcriber.Start(sessionCtx)
		if err != nil {
			cancel()
			m.mu.Lock()
			m.active = false
			m.mu.Unlock()
			return fmt.Errorf("session: %s: start transcriber: %w", m.cfg.SessionID, err)
		}
		finals = f
	}

	m.wg.Add(1)
	go m.runTurns(sessionCtx)

	m.log.Info("session started", "session_id", m.cfg.SessionID, "user_id", m.cfg.UserID, "persona_id", m.cfg.PersonaID)

	m.loop(sessionCtx, finals)

	// loop may have returned for reasons other than ctx itself being
	// cancelled (explicit end, client channel closing); cancel here so
	// runTurns and any in-flight turn unwind promptly.
	cancel()
	m.wg.Wait()
	m.teardown()
	return nil
}

// loop consumes the client channel's inbound events and the Transcriber's
// final transcripts until the session context is cancelled or the channel
// closes (§4.8).
func (m *Manager) loop(ctx context.Context, finals <-chan string) {
	inbound := m.cfg.Channel.Inbound()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-inbound:
			if !ok {
				return
			}
			if m.handleInbound(ctx, ev) {
				return
			}
		case text, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			m.enqueueTurn(text, false)
		}
	}
}

// handleInbound dispatches one client event per §4.8's event table.
// Returns true if the session should end.
func (m *Manager) handleInbound(ctx context.Context, ev InboundEvent) bool {
	switch ev.Kind {
	case InboundAudioFrame:
		if m.cfg.Transcriber != nil {
			if err := m.cfg.Transcriber.SendAudio(ev.Audio); err != nil {
				m.log.Warn("session: send audio failed", "session_id", m.cfg.SessionID, "err", err)
			}
		}
	case InboundVisionImage:
		capturedAt := ev.ImageCapturedAt
		if capturedAt.IsZero() {
			capturedAt = m.now()
		}
		m.mu.Lock()
		m.vision = types.VisionImage{Bytes: ev.Image, CapturedAt: capturedAt}
		m.mu.Unlock()
		if m.cfg.VisionImages != nil {
			m.cfg.VisionImages.Publish(m.cfg.SessionID, ev.Image)
		}
	case InboundTextMessage:
		m.enqueueTurn(ev.Text, false)
	case InboundPurchaseStatus:
		m.handlePurchaseStatus(ctx, ev)
	case InboundEnd:
		m.cancelCurrentTurn(turn.ReasonClientEnd)
		return true
	}
	return false
}

// cancelCurrentTurn cancels the in-flight TurnHandle, if any, with reason
// (§4.8's explicit-`end` rule).
func (m *Manager) cancelCurrentTurn(reason turn.Reason) {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current != nil {
		current.handle.Cancel(reason)
	}
}

// handlePurchaseStatus pushes a client-reported funnel transition into the
// Purchase-Flow Tracker and re-emits llm-context-update (§4.8's last rule).
func (m *Manager) handlePurchaseStatus(ctx context.Context, ev InboundEvent) {
	if m.cfg.Purchase != nil {
		if err := m.cfg.Purchase.Set(ctx, m.cfg.SessionID, ev.PurchaseType, ev.PurchaseData); err != nil {
			m.log.Warn("session: purchase-flow set failed", "session_id", m.cfg.SessionID, "err", err)
		}
	}
	m.cfg.Channel.Send(clientevent.LLMContextUpdateEvent(
		"purchase-flow",
		string(ev.PurchaseType),
		m.cfg.SessionID,
		mapAny(ev.PurchaseData),
	))
}

func mapAny(m map[string]string) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// enqueueTurn submits a final transcript (or bypass text message) for the
// turn runner. The runner itself enforces the serialize-vs-barge-in
// invariant (§4.8).
func (m *Manager) enqueueTurn(text string, proactive bool) {
	select {
	case m.turns <- turnJob{userText: text, proactive: proactive}:
	default:
		m.log.Warn("session: turn queue full, dropping turn", "session_id", m.cfg.SessionID)
	}
}

// runTurns is the single goroutine that executes turns one at a time. A
// FIFO queue plus barge-in's eager cancellation of the in-flight turn
// together implement §4.8's invariant: a pending final either arrives
// while the current turn is already cancelled by barge-in (drains fast) or
// waits its turn (serialized).
func (m *Manager) runTurns(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-m.turns:
			if !ok {
				return
			}
			m.runTurn(ctx, job)
		}
	}
}

func (m *Manager) runTurn(ctx context.Context, job turnJob) {
	if m.cfg.Orchestrator == nil {
		return
	}

	turnCtx, handle := turn.New(ctx)
	active := &activeTurn{handle: handle}
	m.setCurrent(active)
	defer m.clearCurrent(active)

	userMessage := m.buildUserMessage(job.userText)
	visionURL, visionFresh := m.visionForTool()

	req := orchestrator.Request{
		SessionID:        m.cfg.SessionID,
		UserID:           m.cfg.UserID,
		PersonaID:        m.cfg.PersonaID,
		UserMessage:      userMessage,
		Proactive:        job.proactive,
		VisionImageURL:   visionURL,
		VisionImageFresh: visionFresh,
		Sink:             m.cfg.Channel,
		AvatarID:         m.cfg.AvatarID,
		Handle:           handle,
	}

	if _, err := m.cfg.Orchestrator.Respond(turnCtx, req); err != nil {
		m.log.Warn("session: orchestrator respond failed", "session_id", m.cfg.SessionID, "err", err)
	}
}

// buildUserMessage attaches the last-vision-image slot inline (as an image
// part) when it is within the inline TTL (§3).
func (m *Manager) buildUserMessage(text string) types.Content {
	m.mu.Lock()
	img := m.vision
	m.mu.Unlock()

	if img.Age(m.now()) >= inlineVisionTTL || len(img.Bytes) == 0 {
		return types.TextContent(text)
	}
	url := ""
	if m.cfg.VisionImages != nil {
		url = m.cfg.VisionImages.Publish(m.cfg.SessionID, img.Bytes)
	}
	if url == "" {
		return types.TextContent(text)
	}
	return types.PartsContent(
		types.Part{Kind: types.PartText, Text: text},
		types.Part{Kind: types.PartImage, URL: url},
	)
}

// visionForTool reports the URL and freshness (on-demand TTL, §4.10 item 2)
// of the last-vision-image slot, for toolregistry.TurnContext.
func (m *Manager) visionForTool() (url string, fresh bool) {
	m.mu.Lock()
	img := m.vision
	m.mu.Unlock()

	if len(img.Bytes) == 0 {
		return "", false
	}
	fresh = img.Age(m.now()) < onDemandVisionTTL
	if m.cfg.VisionImages != nil {
		url = m.cfg.VisionImages.Publish(m.cfg.SessionID, img.Bytes)
	}
	return url, fresh
}

func (m *Manager) setCurrent(h *activeTurn) {
	m.mu.Lock()
	m.current = h
	m.mu.Unlock()
}

func (m *Manager) clearCurrent(h *activeTurn) {
	m.mu.Lock()
	if m.current == h {
		m.current = nil
	}
	m.mu.Unlock()
}

// Stop ends the session from outside the event loop: it is equivalent to
// the client sending an explicit `end` (§4.8).
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// teardown runs the accumulated closers in reverse order, releases the
// Purchase-Flow entry, and closes the Transcriber and channel (§4.8's
// explicit-`end` rule), mirroring the teacher's SessionManager.Stop.
func (m *Manager) teardown() {
	m.mu.Lock()
	closers := m.closers
	m.closers = nil
	m.active = false
	m.info.EndedAt = m.now()
	m.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			m.log.Warn("session: closer error", "session_id", m.cfg.SessionID, "index", i, "err", err)
		}
	}

	if m.cfg.Transcriber != nil {
		if err := m.cfg.Transcriber.Close(); err != nil {
			m.log.Warn("session: transcriber close error", "session_id", m.cfg.SessionID, "err", err)
		}
	}
	if m.cfg.Purchase != nil {
		if err := m.cfg.Purchase.Clear(context.Background(), m.cfg.SessionID); err != nil {
			m.log.Warn("session: purchase-flow clear error", "session_id", m.cfg.SessionID, "err", err)
		}
	}
	if m.cfg.Channel != nil {
		if err := m.cfg.Channel.Close(); err != nil {
			m.log.Warn("session: channel close error", "session_id", m.cfg.SessionID, "err", err)
		}
	}

	m.log.Info("session stopped", "session_id", m.cfg.SessionID)
}

// IsActive reports whether the session's event loop is running.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Info returns metadata about the session.
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}
