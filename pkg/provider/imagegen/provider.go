// Package imagegen defines the Provider interface for image generation
// backends used by the Image/Style Generator Client (C3, spec §4.3).
//
// A provider wraps a hosted image model and presents two operations: a
// text-conditioned edit of a single source image, and a virtual try-on that
// composites a garment image onto a model image. Both are synchronous,
// request/response calls — there is no streaming mode for image generation.
package imagegen

import "context"

// EditParams are the fixed numeric parameters spec §4.3 mandates for the
// text-conditioned edit mode (no per-call tuning).
var EditParams = struct {
	Strength      float64
	Steps         int
	Guidance      float64
	ImageSize     string
}{
	Strength:  0.7,
	Steps:     28,
	Guidance:  3.5,
	ImageSize: "square_hd",
}

// Result is the outcome of a successful generation call.
type Result struct {
	// URL is the provider-hosted URL of the generated image.
	URL string
	// Model is the identifier of the model that produced URL, suitable for
	// the style-generation log (§4.10) and the operation's modelUsed field.
	Model string
}

// Provider is the abstraction over any hosted image generation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// GenerateEdit applies prompt to sourceImageURL using the fixed
	// parameters in EditParams.
	GenerateEdit(ctx context.Context, sourceImageURL, prompt string) (Result, error)

	// GenerateTryOn composites garmentImageURL onto modelImageURL using a
	// virtual try-on model. prompt, when non-empty, further conditions the
	// result (e.g. pose or styling hints).
	GenerateTryOn(ctx context.Context, modelImageURL, garmentImageURL, prompt string) (Result, error)

	// Upload copies raw image bytes into the provider's own storage and
	// returns a URL the provider can read back, for sources the provider
	// cannot reach directly (spec §4.3's local-host special case).
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}
