// Package styleimage implements the Image/Style Generator Client (C3, spec
// §4.3): a request/response wrapper around a hosted image model that copies
// its result into persistent object storage.
package styleimage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/auravox/core/internal/apperr"
	"github.com/auravox/core/pkg/provider/imagegen"
	"github.com/auravox/core/pkg/provider/objectstore"
)

// Result is the outcome of a successful GenerateStyle call.
type Result struct {
	GeneratedURL string
	FalURL       string
	ModelUsed    string
}

// localHosts are image source hosts the generator cannot reach directly.
var localHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
}

// Client composes an image generation provider with an object storage
// provider to implement GenerateStyle.
type Client struct {
	images  imagegen.Provider
	storage objectstore.Provider
	http    *http.Client
	now     func() string
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to fetch local-host source
// images. Intended for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimestamp overrides the function used to stamp the object storage key.
// Intended for tests; defaults to an RFC3339-nano based id supplied by the
// caller's clock via [New]'s nowFunc.
func WithTimestamp(now func() string) Option {
	return func(cl *Client) { cl.now = now }
}

// New creates a Client. nowFunc supplies the timestamp component of the
// object storage key (spec §4.3's `{sessionId}-{timestamp}.png`); callers
// inject it rather than the client reaching for wall-clock time directly, so
// generated keys are deterministic in tests.
func New(images imagegen.Provider, storage objectstore.Provider, nowFunc func() string, opts ...Option) *Client {
	c := &Client{
		images:  images,
		storage: storage,
		http:    &http.Client{},
		now:     nowFunc,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GenerateStyle implements the C3 operation. When referenceImageURLs is
// non-empty it invokes the virtual try-on model with imageURL as the model
// image and the first reference as the garment image; otherwise it invokes
// the text-conditioned edit model with the provider's fixed parameters.
func (c *Client) GenerateStyle(ctx context.Context, imageURL, prompt, sessionID, personaID string, referenceImageURLs []string) (Result, error) {
	sourceURL, err := c.resolveSource(ctx, imageURL)
	if err != nil {
		return Result{}, err
	}

	var gen imagegen.Result
	if len(referenceImageURLs) > 0 {
		gen, err = c.images.GenerateTryOn(ctx, sourceURL, referenceImageURLs[0], prompt)
	} else {
		gen, err = c.images.GenerateEdit(ctx, sourceURL, prompt)
	}
	if err != nil {
		return Result{}, fmt.Errorf("styleimage: %w: %w", apperr.UpstreamError, err)
	}
	if gen.URL == "" {
		return Result{}, fmt.Errorf("styleimage: %w", apperr.NoMediaReturned)
	}

	persistedURL := c.persist(ctx, gen.URL, sessionID, personaID)

	return Result{
		GeneratedURL: persistedURL,
		FalURL:       gen.URL,
		ModelUsed:    gen.Model,
	}, nil
}

// resolveSource substitutes a reachable URL for one pointing at a
// local-only host, per §4.3's local-host special case: the bytes are
// fetched and re-uploaded to the image provider's own storage.
func (c *Client) resolveSource(ctx context.Context, imageURL string) (string, error) {
	parsed, err := url.Parse(imageURL)
	if err != nil || !localHosts[parsed.Hostname()] {
		return imageURL, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("styleimage: %w: build request: %v", apperr.LocalFetchFailed, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("styleimage: %w: fetch %q: %v", apperr.LocalFetchFailed, imageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("styleimage: %w: fetch %q: status %d", apperr.LocalFetchFailed, imageURL, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("styleimage: %w: read %q: %v", apperr.LocalFetchFailed, imageURL, err)
	}

	uploaded, err := c.images.Upload(ctx, data, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("styleimage: %w: upload %q: %v", apperr.LocalFetchFailed, imageURL, err)
	}
	return uploaded, nil
}

// persist copies the provider-returned asset into persistent object storage
// under the documented deterministic key, falling back to the provider URL
// if the copy fails.
func (c *Client) persist(ctx context.Context, providerURL, sessionID, personaID string) string {
	data, contentType, err := fetchBytes(ctx, c.http, providerURL)
	if err != nil {
		return providerURL
	}

	key := fmt.Sprintf("style-suggestions/%s/%s-%s.png", personaID, sessionID, c.now())
	persistedURL, err := c.storage.Put(ctx, key, data, contentType)
	if err != nil {
		return providerURL
	}
	return persistedURL
}

func fetchBytes(ctx context.Context, client *http.Client, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), resp.Header.Get("Content-Type"), nil
}
