package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/auravox/core/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":      {"openai", "anthropic", "ollama"},
	"stt":      {"deepgram", "openai"},
	"tts":      {"elevenlabs", "coqui"},
	"imagegen": {"fal"},
}

// validPersonaCategories lists the recognised persona categories (§3).
var validPersonaCategories = []string{
	string(types.CategoryStylist),
	string(types.CategoryProducer),
	string(types.CategoryFitness),
	string(types.CategoryGeneric),
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("imagegen", cfg.Providers.ImageGen.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" && len(cfg.Personas) > 0 {
		slog.Warn("no LLM provider configured; personas will not be able to generate responses")
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Personas) > 0 {
		slog.Warn("no TTS provider configured; turns will be text-only")
	}

	// Purchase ↔ tool availability
	if cfg.Purchase.ProductsEnabled && cfg.Providers.ImageGen.Name == "" {
		// Products and style generation are independent tools; this is
		// informational only.
		_ = struct{}{}
	}

	// Persona duplicate ID / field validation.
	personaIDsSeen := make(map[string]int, len(cfg.Personas))
	for i, p := range cfg.Personas {
		prefix := fmt.Sprintf("personas[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if prev, ok := personaIDsSeen[p.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of personas[%d]", prefix, p.ID, prev))
		} else {
			personaIDsSeen[p.ID] = i
		}
		if p.Category != "" && !slices.Contains(validPersonaCategories, p.Category) {
			errs = append(errs, fmt.Errorf("%s.category %q is invalid; valid values: %v", prefix, p.Category, validPersonaCategories))
		}
		if p.Category == string(types.CategoryStylist) && cfg.Providers.ImageGen.Name == "" {
			errs = append(errs, fmt.Errorf("%s: category %q requires providers.imagegen to be configured", prefix, p.Category))
		}
		for j, outfit := range p.ReferenceOutfits {
			if outfit.Name == "" {
				errs = append(errs, fmt.Errorf("%s.reference_outfits[%d].name is required", prefix, j))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// ToPersona converts a [PersonaConfig] into a [types.Persona] for seeding a
// [persona.MemoryStore] at process startup.
func (p PersonaConfig) ToPersona() types.Persona {
	outfits := make([]types.ReferenceOutfit, len(p.ReferenceOutfits))
	for i, o := range p.ReferenceOutfits {
		outfits[i] = types.ReferenceOutfit{
			ID:          o.ID,
			Name:        o.Name,
			Brand:       o.Brand,
			ImageURL:    o.ImageURL,
			Tags:        o.Tags,
			Description: o.Description,
		}
	}
	return types.Persona{
		ID:                      p.ID,
		DisplayName:             p.DisplayName,
		Category:                types.PersonaCategory(p.Category),
		SystemPrompt:            p.SystemPrompt,
		VoiceID:                 p.VoiceID,
		ReferenceOutfits:        outfits,
		PreferredGenres:         p.PreferredGenres,
		VisionCaptureIntervalMs: p.VisionCaptureIntervalMs,
	}
}
