package session

import (
	"io"
	"net/http"
	"testing"
)

func TestHTTPVisionServer_PublishAndServe(t *testing.T) {
	s, err := NewHTTPVisionServer("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewHTTPVisionServer: %v", err)
	}
	defer s.Close()

	url := s.Publish("sess-1", []byte("jpeg-bytes"))

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "jpeg-bytes" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestHTTPVisionServer_WrongTokenNotFound(t *testing.T) {
	s, err := NewHTTPVisionServer("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewHTTPVisionServer: %v", err)
	}
	defer s.Close()

	s.Publish("sess-1", []byte("jpeg-bytes"))

	resp, err := http.Get(s.baseURL + "/vision/sess-1?t=wrong-token")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for wrong token, got %d", resp.StatusCode)
	}
}

func TestHTTPVisionServer_RepublishInvalidatesOldToken(t *testing.T) {
	s, err := NewHTTPVisionServer("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewHTTPVisionServer: %v", err)
	}
	defer s.Close()

	oldURL := s.Publish("sess-1", []byte("first"))
	s.Publish("sess-1", []byte("second"))

	resp, err := http.Get(oldURL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for superseded token, got %d", resp.StatusCode)
	}
}

func TestHTTPVisionServer_ReleaseRemovesEntry(t *testing.T) {
	s, err := NewHTTPVisionServer("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewHTTPVisionServer: %v", err)
	}
	defer s.Close()

	url := s.Publish("sess-1", []byte("jpeg-bytes"))
	if err := s.Release("sess-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after release, got %d", resp.StatusCode)
	}
}
