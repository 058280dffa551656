// Package config provides the configuration schema, loader, and provider registry
// for the Happy Sentences service.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Environment is the deployment environment. Diagnostics routes and the dev
// bypass exist only outside production.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// IsValid reports whether e is a recognised environment.
func (e Environment) IsValid() bool {
	return e == EnvDevelopment || e == EnvProduction
}

// StorageBackend selects the key-value store implementation.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageFile     StorageBackend = "file"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageMemory, StorageFile, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Speech    SpeechConfig    `yaml:"speech"`
	Premium   PremiumConfig   `yaml:"premium"`
	Generate  GenerateConfig  `yaml:"generate"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log lines.
	LogFormat LogFormat `yaml:"log_format"`

	// Environment is "development" or "production".
	Environment Environment `yaml:"environment"`

	// DevBypass skips entitlement checks for premium voice. Ignored in
	// production.
	DevBypass bool `yaml:"dev_bypass"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// Production reports whether the server runs in production.
func (s ServerConfig) Production() bool { return s.Environment == EnvProduction }

// DevBypassEnabled reports whether the dev bypass is in effect.
func (s ServerConfig) DevBypassEnabled() bool { return s.DevBypass && !s.Production() }

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SpeechConfig configures the host speech engine and the speaker around it.
type SpeechConfig struct {
	// Engine selects the registered speech engine ("espeak", "none").
	Engine string `yaml:"engine"`

	// Binary overrides the engine executable path.
	Binary string `yaml:"binary"`

	// UserAgent is matched against the embedded-browser heuristic when no
	// voices load.
	UserAgent string `yaml:"user_agent"`

	// StabilizeDelay is the pause between canceling and speaking.
	StabilizeDelay time.Duration `yaml:"stabilize_delay"`

	// VoicePoll bounds the wait for the voice list.
	VoicePoll PollConfig `yaml:"voice_poll"`

	// Timeout is how long a started utterance may take to finish.
	Timeout time.Duration `yaml:"timeout"`

	// SentencePause separates sentences in multi-sentence playback.
	SentencePause time.Duration `yaml:"sentence_pause"`
}

// PollConfig is a bounded polling budget.
type PollConfig struct {
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

// PremiumConfig configures the premium voice route and client.
type PremiumConfig struct {
	// Endpoint is the premium voice URL the CLI client posts to.
	Endpoint string `yaml:"endpoint"`

	// Synthesizer selects the synthesis backend used by the server route.
	Synthesizer ProviderEntry `yaml:"synthesizer"`

	// Fallbacks are tried in order when the synthesizer fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Voice is the default voice ID.
	Voice string `yaml:"voice"`

	// MaxTextLength is the longest accepted text in characters.
	MaxTextLength int `yaml:"max_text_length"`

	// Player overrides the audio player binary used by the CLI.
	Player string `yaml:"player"`
}

// GenerateConfig configures sentence generation.
type GenerateConfig struct {
	// Provider selects the LLM backend.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the provider fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	Temperature      float64 `yaml:"temperature"`
	RetryTemperature float64 `yaml:"retry_temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
}

// StorageConfig selects where sentences and entitlements are kept.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// Path is the file or SQLite database path.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the share of root traces that are sampled, in
	// [0, 1]. Zero keeps the default of sampling everything.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}
