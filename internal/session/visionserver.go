package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// visionEntryTTL bounds how long a published vision image stays servable,
// matching the tool-dispatch on-demand freshness window (§4.10 item 2) with
// a little slack for in-flight requests.
const visionEntryTTL = onDemandVisionTTL + 30*time.Second

// HTTPVisionServer implements [VisionImageServer] by serving each session's
// last-vision-image bytes from a single local HTTP listener, one route per
// session, guarded by a random per-publish token (§3's "raw VisionImage
// bytes are not themselves a URL" note; SPEC_FULL §B's local-HTTP-serving
// design for C10's VisionImageURL).
//
// Only the most recently published image per session is servable; an
// earlier token for the same session stops resolving once a newer one is
// published, since the underlying slot itself (§3) holds only one image.
type HTTPVisionServer struct {
	log *slog.Logger

	mu      sync.Mutex
	entries map[string]visionEntry

	listener net.Listener
	baseURL  string
}

type visionEntry struct {
	token     string
	bytes     []byte
	expiresAt time.Time
}

// NewHTTPVisionServer starts a local HTTP listener on addr (e.g.
// "127.0.0.1:0" to let the OS pick a free port) and returns a server ready
// to publish vision images. Call Close to shut the listener down.
func NewHTTPVisionServer(addr string, log *slog.Logger) (*HTTPVisionServer, error) {
	if log == nil {
		log = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: vision image server listen: %w", err)
	}
	s := &HTTPVisionServer{
		log:      log,
		entries:  make(map[string]visionEntry),
		listener: ln,
		baseURL:  fmt.Sprintf("http://%s", ln.Addr().String()),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/vision/", s.serve)
	go func() {
		if err := http.Serve(ln, mux); err != nil {
			s.log.Debug("session: vision image server stopped", "err", err)
		}
	}()
	return s, nil
}

// Compile-time interface checks.
var (
	_ VisionImageServer   = (*HTTPVisionServer)(nil)
	_ visionImageReleaser = (*HTTPVisionServer)(nil)
)

// Publish stores bytes as sessionID's servable image under a fresh token,
// replacing any previously published image for that session.
func (s *HTTPVisionServer) Publish(sessionID string, bytes []byte) string {
	token := newVisionToken()
	s.mu.Lock()
	s.entries[sessionID] = visionEntry{token: token, bytes: bytes, expiresAt: time.Now().Add(visionEntryTTL)}
	s.mu.Unlock()
	return fmt.Sprintf("%s/vision/%s?t=%s", s.baseURL, sessionID, token)
}

// Release removes sessionID's servable image, if any (the Session
// Manager's end-of-session closer).
func (s *HTTPVisionServer) Release(sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}

// Close stops the listener.
func (s *HTTPVisionServer) Close() error {
	return s.listener.Close()
}

func (s *HTTPVisionServer) serve(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Path[len("/vision/"):]
	token := r.URL.Query().Get("t")

	s.mu.Lock()
	entry, ok := s.entries[sessionID]
	s.mu.Unlock()

	if !ok || entry.token != token || time.Now().After(entry.expiresAt) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(entry.bytes)
}

func newVisionToken() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
