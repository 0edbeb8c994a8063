// Package config provides the configuration schema, loader, and provider
// registry for the avatar conversational media pipeline.
package config

// Config is the root configuration structure for the avatar core process.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Personas  []PersonaConfig `yaml:"personas"`
	Purchase  PurchaseConfig  `yaml:"purchase"`
	Transcript TranscriptConfig `yaml:"transcript"`
}

// ServerConfig holds network and logging settings for the avatar core server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// VisionImageAddr is the local address the per-session vision-image
	// HTTP server binds to (e.g. "127.0.0.1:0" to let the OS pick a free
	// port); served URLs satisfy toolregistry.TurnContext.VisionImageURL.
	VisionImageAddr string `yaml:"vision_image_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM     ProviderEntry `yaml:"llm"`
	STT     ProviderEntry `yaml:"stt"`
	TTS     ProviderEntry `yaml:"tts"`
	ImageGen ProviderEntry `yaml:"imagegen"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "elevenlabs", "fal").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "eleven_flash_v2_5").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// PersonaConfig describes a single persona's personality, voice, and
// style-generation configuration (§3's Persona type).
type PersonaConfig struct {
	// ID is the persona's stable identifier, referenced by session requests.
	ID string `yaml:"id"`

	// DisplayName is the persona's in-app display name.
	DisplayName string `yaml:"display_name"`

	// Category selects orchestration behavior. Valid values: "stylist",
	// "producer", "fitness", "generic".
	Category string `yaml:"category"`

	// SystemPrompt is the persona's base system prompt (§4.7 step 3).
	SystemPrompt string `yaml:"system_prompt"`

	// VoiceID selects the TTS voice profile for this persona.
	VoiceID string `yaml:"voice_id"`

	// ReferenceOutfits lists named, imaged garments available for virtual
	// try-on (stylist personas only, §4.10).
	ReferenceOutfits []ReferenceOutfitConfig `yaml:"reference_outfits"`

	// PreferredGenres is free-form metadata used by producer personas.
	PreferredGenres []string `yaml:"preferred_genres"`

	// VisionCaptureIntervalMs suggests how often the client should capture
	// and send a vision image for this persona; zero means never.
	VisionCaptureIntervalMs int `yaml:"vision_capture_interval_ms"`
}

// ReferenceOutfitConfig is one persona reference outfit entry.
type ReferenceOutfitConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Brand       string   `yaml:"brand"`
	ImageURL    string   `yaml:"image_url"`
	Tags        []string `yaml:"tags"`
	Description string   `yaml:"description"`
}

// PurchaseConfig configures the Purchase-Flow Tracker (C6).
type PurchaseConfig struct {
	// ProductsEnabled gates the get_trending_products tool (§4.7 step 4).
	ProductsEnabled bool `yaml:"products_enabled"`

	// RedisAddr, if set, backs the tracker with [purchaseflow.RedisTracker]
	// for multi-instance deployments instead of the in-process default.
	RedisAddr string `yaml:"redis_addr"`

	// ProductsFeedURL is the trending-product JSON feed polled by
	// get_trending_products when ProductsEnabled is set (§4.10 item 4).
	ProductsFeedURL string `yaml:"products_feed_url"`
}

// TranscriptConfig configures the cross-session Transcript Store.
type TranscriptConfig struct {
	// PostgresDSN, if set, backs the store with a PostgreSQL table instead
	// of the in-process default.
	PostgresDSN string `yaml:"postgres_dsn"`
}
