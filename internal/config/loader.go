package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":    {"placeholder", "openai", "elevenlabs", "coqui"},
	"speech": {"espeak", "none"},
}

// Environment variables read by [ApplyEnv].
const (
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvDevBypass = "HAPPY_DEV_BYPASS"
)

// Load reads the YAML configuration file at path, applies defaults and
// environment overrides, and returns a validated [Config].
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
	ApplyEnv(cfg, os.LookupEnv)
	return cfg, nil
}

// Default returns a configuration with every default applied and no file
// behind it.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Environment overrides are not applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = ":8080"
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.LogFormat == "" {
		s.LogFormat = LogFormatText
	}
	if s.Environment == "" {
		s.Environment = EnvDevelopment
	}

	sp := &cfg.Speech
	if sp.Engine == "" {
		sp.Engine = "espeak"
	}
	if sp.StabilizeDelay == 0 {
		sp.StabilizeDelay = 100 * time.Millisecond
		if s.Production() {
			sp.StabilizeDelay = 50 * time.Millisecond
		}
	}
	if sp.VoicePoll.Attempts == 0 {
		sp.VoicePoll.Attempts = 4
	}
	if sp.VoicePoll.Backoff == 0 {
		sp.VoicePoll.Backoff = 100 * time.Millisecond
	}
	if sp.Timeout == 0 {
		sp.Timeout = 30 * time.Second
	}
	if sp.SentencePause == 0 {
		sp.SentencePause = 800 * time.Millisecond
	}

	p := &cfg.Premium
	if p.Endpoint == "" {
		p.Endpoint = "http://localhost:8080/api/tts/premium"
	}
	if p.Synthesizer.Name == "" {
		p.Synthesizer.Name = "placeholder"
	}
	if p.MaxTextLength == 0 {
		p.MaxTextLength = 1000
	}

	g := &cfg.Generate
	if g.Provider.Name == "" {
		g.Provider.Name = "openai"
	}
	if g.Provider.Model == "" {
		g.Provider.Model = "gpt-4o-mini"
	}
	if g.Temperature == 0 {
		g.Temperature = 0.8
	}
	if g.RetryTemperature == 0 {
		g.RetryTemperature = 0.7
	}
	if g.MaxTokens == 0 {
		g.MaxTokens = 800
	}

	st := &cfg.Storage
	if st.Backend == "" {
		st.Backend = StorageFile
	}
	if st.Path == "" {
		switch st.Backend {
		case StorageFile:
			st.Path = "happysentences.json"
		case StorageSQLite:
			st.Path = "happysentences.db"
		}
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "happysentences"
	}
}

// ApplyEnv overrides secrets and switches from the environment. lookup is
// usually [os.LookupEnv].
//
// OPENAI_API_KEY fills the api_key of every OpenAI provider entry that has
// none. HAPPY_DEV_BYPASS ("true"/"false") sets server.dev_bypass.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if key, ok := lookup(EnvOpenAIKey); ok && key != "" {
		for _, e := range providerEntries(cfg) {
			if e.Name == "openai" && e.APIKey == "" {
				e.APIKey = key
			}
		}
	}
	if v, ok := lookup(EnvDevBypass); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("ignoring invalid boolean in environment", "var", EnvDevBypass, "value", v)
		} else {
			cfg.Server.DevBypass = b
		}
	}
}

func providerEntries(cfg *Config) []*ProviderEntry {
	out := []*ProviderEntry{&cfg.Generate.Provider, &cfg.Premium.Synthesizer}
	for i := range cfg.Generate.Fallbacks {
		out = append(out, &cfg.Generate.Fallbacks[i])
	}
	for i := range cfg.Premium.Fallbacks {
		out = append(out, &cfg.Premium.Fallbacks[i])
	}
	return out
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	s := cfg.Server
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	if s.LogFormat != "" && !s.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", s.LogFormat))
	}
	if s.Environment != "" && !s.Environment.IsValid() {
		errs = append(errs, fmt.Errorf("server.environment %q is invalid; valid values: development, production", s.Environment))
	}
	if s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if s.DevBypass && s.Production() {
		slog.Warn("server.dev_bypass is ignored in production")
	}

	// Speech
	sp := cfg.Speech
	validateProviderName("speech", sp.Engine)
	for _, d := range []struct {
		name string
		val  time.Duration
	}{
		{"stabilize_delay", sp.StabilizeDelay},
		{"voice_poll.backoff", sp.VoicePoll.Backoff},
		{"timeout", sp.Timeout},
		{"sentence_pause", sp.SentencePause},
	} {
		if d.val < 0 {
			errs = append(errs, fmt.Errorf("speech.%s %s must not be negative", d.name, d.val))
		}
	}
	if sp.VoicePoll.Attempts < 0 {
		errs = append(errs, fmt.Errorf("speech.voice_poll.attempts %d must not be negative", sp.VoicePoll.Attempts))
	}

	// Premium
	p := cfg.Premium
	validateProviderName("tts", p.Synthesizer.Name)
	for i, fb := range p.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("premium.fallbacks[%d].name is required", i))
		}
		validateProviderName("tts", fb.Name)
	}
	if p.MaxTextLength < 0 {
		errs = append(errs, fmt.Errorf("premium.max_text_length %d must not be negative", p.MaxTextLength))
	}

	// Generate
	g := cfg.Generate
	validateProviderName("llm", g.Provider.Name)
	for i, fb := range g.Fallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("generate.fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generate.temperature %.2f is out of range [0, 2]", g.Temperature))
	}
	if g.RetryTemperature < 0 || g.RetryTemperature > 2 {
		errs = append(errs, fmt.Errorf("generate.retry_temperature %.2f is out of range [0, 2]", g.RetryTemperature))
	}
	if g.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("generate.max_tokens %d must not be negative", g.MaxTokens))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	// Storage
	st := cfg.Storage
	if st.Backend != "" && !st.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, sqlite, postgres", st.Backend))
	}
	if (st.Backend == StorageFile || st.Backend == StorageSQLite) && st.Path == "" {
		errs = append(errs, fmt.Errorf("storage.path is required for backend %q", st.Backend))
	}
	if st.Backend == StoragePostgres && st.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required for backend \"postgres\""))
	}
	if st.Backend == StorageMemory {
		slog.Warn("storage.backend is memory; saved sentences are lost on restart")
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
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
