package styleimage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/auravox/core/internal/apperr"
	"github.com/auravox/core/pkg/provider/imagegen"
)

type stubImages struct {
	editURL, editModel     string
	editErr                error
	tryOnURL, tryOnModel   string
	tryOnErr               error
	uploadURL              string
	uploadErr              error
	gotSource, gotGarment  string
	tryOnCalled, editCalled bool
}

func (s *stubImages) GenerateEdit(_ context.Context, sourceImageURL, _ string) (imagegen.Result, error) {
	s.editCalled = true
	s.gotSource = sourceImageURL
	if s.editErr != nil {
		return imagegen.Result{}, s.editErr
	}
	return imagegen.Result{URL: s.editURL, Model: s.editModel}, nil
}

func (s *stubImages) GenerateTryOn(_ context.Context, modelImageURL, garmentImageURL, _ string) (imagegen.Result, error) {
	s.tryOnCalled = true
	s.gotSource = modelImageURL
	s.gotGarment = garmentImageURL
	if s.tryOnErr != nil {
		return imagegen.Result{}, s.tryOnErr
	}
	return imagegen.Result{URL: s.tryOnURL, Model: s.tryOnModel}, nil
}

func (s *stubImages) Upload(_ context.Context, _ []byte, _ string) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return s.uploadURL, nil
}

type stubStorage struct {
	putURL string
	putErr error
}

func (s *stubStorage) Put(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	if s.putErr != nil {
		return "", s.putErr
	}
	return s.putURL, nil
}

func (s *stubStorage) Fetch(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func fixedNow() string { return "20260101120000" }

func TestGenerateStyle_TextConditionedEdit(t *testing.T) {
	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("asset-bytes"))
	}))
	defer assetSrv.Close()

	images := &stubImages{editURL: assetSrv.URL, editModel: "edit-model"}
	storage := &stubStorage{putURL: "https://cdn.example.com/persisted.png"}
	c := New(images, storage, fixedNow)

	result, err := c.GenerateStyle(context.Background(), "https://example.com/source.png", "make it blue", "sess-1", "persona-1", nil)
	if err != nil {
		t.Fatalf("GenerateStyle: %v", err)
	}
	if !images.editCalled || images.tryOnCalled {
		t.Fatal("expected GenerateEdit to be invoked, not GenerateTryOn")
	}
	if images.gotSource != "https://example.com/source.png" {
		t.Errorf("unexpected source forwarded: %q", images.gotSource)
	}
	if result.FalURL != assetSrv.URL {
		t.Errorf("expected FalURL %q, got %q", assetSrv.URL, result.FalURL)
	}
	if result.GeneratedURL != "https://cdn.example.com/persisted.png" {
		t.Errorf("expected persisted URL, got %q", result.GeneratedURL)
	}
	if result.ModelUsed != "edit-model" {
		t.Errorf("expected model 'edit-model', got %q", result.ModelUsed)
	}
}

func TestGenerateStyle_VirtualTryOn_WhenReferencesProvided(t *testing.T) {
	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("asset-bytes"))
	}))
	defer assetSrv.Close()

	images := &stubImages{tryOnURL: assetSrv.URL, tryOnModel: "tryon-model"}
	storage := &stubStorage{putURL: "https://cdn.example.com/persisted.png"}
	c := New(images, storage, fixedNow)

	_, err := c.GenerateStyle(context.Background(), "https://example.com/model.png", "", "sess-1", "persona-1", []string{"https://example.com/garment.png"})
	if err != nil {
		t.Fatalf("GenerateStyle: %v", err)
	}
	if !images.tryOnCalled || images.editCalled {
		t.Fatal("expected GenerateTryOn to be invoked, not GenerateEdit")
	}
	if images.gotGarment != "https://example.com/garment.png" {
		t.Errorf("unexpected garment forwarded: %q", images.gotGarment)
	}
}

func TestGenerateStyle_PersistFailure_FallsBackToProviderURL(t *testing.T) {
	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("asset-bytes"))
	}))
	defer assetSrv.Close()

	images := &stubImages{editURL: assetSrv.URL, editModel: "edit-model"}
	storage := &stubStorage{putErr: errors.New("bucket unavailable")}
	c := New(images, storage, fixedNow)

	result, err := c.GenerateStyle(context.Background(), "https://example.com/source.png", "x", "sess-1", "persona-1", nil)
	if err != nil {
		t.Fatalf("GenerateStyle: %v", err)
	}
	if result.GeneratedURL != assetSrv.URL {
		t.Errorf("expected fallback to provider URL %q, got %q", assetSrv.URL, result.GeneratedURL)
	}
}

func TestGenerateStyle_UpstreamError(t *testing.T) {
	images := &stubImages{editErr: errors.New("model unavailable")}
	storage := &stubStorage{}
	c := New(images, storage, fixedNow)

	_, err := c.GenerateStyle(context.Background(), "https://example.com/source.png", "x", "sess-1", "persona-1", nil)
	if !errors.Is(err, apperr.UpstreamError) {
		t.Errorf("expected apperr.UpstreamError, got %v", err)
	}
}

func TestGenerateStyle_NoMediaReturned(t *testing.T) {
	images := &stubImages{editURL: ""}
	storage := &stubStorage{}
	c := New(images, storage, fixedNow)

	_, err := c.GenerateStyle(context.Background(), "https://example.com/source.png", "x", "sess-1", "persona-1", nil)
	if !errors.Is(err, apperr.NoMediaReturned) {
		t.Errorf("expected apperr.NoMediaReturned, got %v", err)
	}
}

func TestGenerateStyle_LocalHostSource_FetchesAndUploads(t *testing.T) {
	localSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("local-bytes"))
	}))
	defer localSrv.Close()

	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("asset-bytes"))
	}))
	defer assetSrv.Close()

	images := &stubImages{editURL: assetSrv.URL, editModel: "edit-model", uploadURL: "https://fal.example.com/reuploaded.png"}
	storage := &stubStorage{putURL: "https://cdn.example.com/persisted.png"}
	c := New(images, storage, fixedNow)

	_, err := c.GenerateStyle(context.Background(), localSrv.URL, "x", "sess-1", "persona-1", nil)
	if err != nil {
		t.Fatalf("GenerateStyle: %v", err)
	}
	if images.gotSource != "https://fal.example.com/reuploaded.png" {
		t.Errorf("expected re-uploaded source forwarded to GenerateEdit, got %q", images.gotSource)
	}
}

func TestGenerateStyle_LocalHostFetchFails(t *testing.T) {
	images := &stubImages{}
	storage := &stubStorage{}
	c := New(images, storage, fixedNow)

	_, err := c.GenerateStyle(context.Background(), "http://localhost:1/missing.png", "x", "sess-1", "persona-1", nil)
	if !errors.Is(err, apperr.LocalFetchFailed) {
		t.Errorf("expected apperr.LocalFetchFailed, got %v", err)
	}
}
