// Package fal provides a fal.ai-backed image generation provider. It
// implements the imagegen.Provider interface using fal.ai's synchronous
// `fal.run` REST endpoints: a text-conditioned edit model and a virtual
// try-on model, plus the storage upload endpoint used for sources the
// provider cannot fetch itself.
package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/auravox/core/pkg/provider/imagegen"
)

const (
	baseURL       = "https://fal.run"
	storageURL    = "https://fal.run/storage/upload"
	defaultEditModel  = "fal-ai/flux-general/image-to-image"
	defaultTryOnModel = "fal-ai/cat-vton"
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithEditModel overrides the model ID used by GenerateEdit.
func WithEditModel(model string) Option {
	return func(p *Provider) { p.editModel = model }
}

// WithTryOnModel overrides the model ID used by GenerateTryOn.
func WithTryOnModel(model string) Option {
	return func(p *Provider) { p.tryOnModel = model }
}

// WithStorageURL overrides the storage upload endpoint. Intended for tests.
func WithStorageURL(url string) Option {
	return func(p *Provider) { p.storageURL = url }
}

// WithBaseURL overrides the model-call base URL. Intended for tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements imagegen.Provider backed by fal.ai.
type Provider struct {
	apiKey     string
	editModel  string
	tryOnModel string
	storageURL string
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface check.
var _ imagegen.Provider = (*Provider)(nil)

// New creates a new fal.ai Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("fal: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		editModel:  defaultEditModel,
		tryOnModel: defaultTryOnModel,
		storageURL: storageURL,
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

type editRequest struct {
	Prompt       string  `json:"prompt"`
	ImageURL     string  `json:"image_url"`
	Strength     float64 `json:"strength"`
	NumInference int     `json:"num_inference_steps"`
	GuidanceScale float64 `json:"guidance_scale"`
	ImageSize    string  `json:"image_size"`
}

type tryOnRequest struct {
	ModelImageURL   string `json:"human_image_url"`
	GarmentImageURL string `json:"garment_image_url"`
	Prompt          string `json:"prompt,omitempty"`
}

type imageResult struct {
	URL string `json:"url"`
}

type generationResponse struct {
	Images []imageResult `json:"images"`
}

type uploadResponse struct {
	URL string `json:"url,omitempty"`
	FileURL string `json:"file_url,omitempty"`
}

// GenerateEdit applies prompt to sourceImageURL via the configured
// text-conditioned edit model, using the spec's fixed parameters.
func (p *Provider) GenerateEdit(ctx context.Context, sourceImageURL, prompt string) (imagegen.Result, error) {
	req := editRequest{
		Prompt:        prompt,
		ImageURL:      sourceImageURL,
		Strength:      imagegen.EditParams.Strength,
		NumInference:  imagegen.EditParams.Steps,
		GuidanceScale: imagegen.EditParams.Guidance,
		ImageSize:     imagegen.EditParams.ImageSize,
	}
	return p.call(ctx, p.editModel, req)
}

// GenerateTryOn composites garmentImageURL onto modelImageURL via the
// configured virtual try-on model.
func (p *Provider) GenerateTryOn(ctx context.Context, modelImageURL, garmentImageURL, prompt string) (imagegen.Result, error) {
	req := tryOnRequest{
		ModelImageURL:   modelImageURL,
		GarmentImageURL: garmentImageURL,
		Prompt:          prompt,
	}
	return p.call(ctx, p.tryOnModel, req)
}

func (p *Provider) call(ctx context.Context, model string, body any) (imagegen.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return imagegen.Result{}, fmt.Errorf("fal: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return imagegen.Result{}, fmt.Errorf("fal: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Key "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return imagegen.Result{}, fmt.Errorf("fal: request %q: %w", model, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return imagegen.Result{}, fmt.Errorf("fal: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return imagegen.Result{}, fmt.Errorf("fal: request %q: unexpected status %d: %s", model, resp.StatusCode, data)
	}

	var gr generationResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return imagegen.Result{}, fmt.Errorf("fal: decode response: %w", err)
	}
	if len(gr.Images) == 0 || gr.Images[0].URL == "" {
		return imagegen.Result{}, errors.New("fal: no image returned")
	}

	return imagegen.Result{URL: gr.Images[0].URL, Model: model}, nil
}

// Upload copies raw image bytes to fal.ai's own storage, for source images
// the provider cannot fetch directly (spec §4.3's local-host special case).
func (p *Provider) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.storageURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("fal: build upload request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Key "+p.apiKey)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fal: upload: %w", err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fal: read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fal: upload: unexpected status %d: %s", resp.StatusCode, respData)
	}

	var ur uploadResponse
	if err := json.Unmarshal(respData, &ur); err != nil {
		return "", fmt.Errorf("fal: decode upload response: %w", err)
	}
	if ur.URL != "" {
		return ur.URL, nil
	}
	if ur.FileURL != "" {
		return ur.FileURL, nil
	}
	return "", errors.New("fal: upload response carried no URL")
}
