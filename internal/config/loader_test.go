package config_test

import (
	"strings"
	"testing"

	"github.com/auravox/core/internal/config"
)

func TestValidate_DuplicatePersonaIDs(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  tts:
    name: elevenlabs
personas:
  - id: nova
  - id: nova
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate persona ids, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_StylistCategoryRequiresImageGenProvider(t *testing.T) {
	t.Parallel()
	yaml := `
personas:
  - id: nova
    category: stylist
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for stylist persona without imagegen provider, got nil")
	}
	if !strings.Contains(err.Error(), "imagegen") {
		t.Errorf("error should mention imagegen provider, got: %v", err)
	}
}

func TestValidate_ProducerCategoryDoesNotRequireImageGenProvider(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  tts:
    name: elevenlabs
personas:
  - id: beat
    category: producer
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StylistWithImageGenProviderIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
  tts:
    name: elevenlabs
  imagegen:
    name: fal
personas:
  - id: nova
    category: stylist
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
personas:
  - id: p1
    category: wizard
  - id: p1
    category: stylist
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	// Should contain both duplicate and category errors.
	errStr := err.Error()
	if !strings.Contains(errStr, "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
	if !strings.Contains(errStr, "category") {
		t.Errorf("error should mention category, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	// Check that "openai" is in the LLM list.
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}

func TestToPersona_ConvertsFields(t *testing.T) {
	t.Parallel()
	pc := config.PersonaConfig{
		ID:           "nova",
		DisplayName:  "Nova",
		Category:     "stylist",
		SystemPrompt: "Be helpful.",
		VoiceID:      "nova-v1",
		ReferenceOutfits: []config.ReferenceOutfitConfig{
			{ID: "o1", Name: "Denim Jacket"},
		},
	}
	p := pc.ToPersona()
	if p.ID != "nova" || p.DisplayName != "Nova" {
		t.Errorf("unexpected persona: %+v", p)
	}
	if len(p.ReferenceOutfits) != 1 || p.ReferenceOutfits[0].Name != "Denim Jacket" {
		t.Errorf("reference outfits not converted: %+v", p.ReferenceOutfits)
	}
}
