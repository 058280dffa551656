package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/happysentences/internal/app"
	"github.com/MrWong99/happysentences/internal/config"
	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/pkg/provider/llm"
	"github.com/MrWong99/happysentences/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/happysentences/pkg/provider/llm/openai"
	"github.com/MrWong99/happysentences/pkg/provider/speech"
	"github.com/MrWong99/happysentences/pkg/provider/speech/espeak"
	"github.com/MrWong99/happysentences/pkg/provider/tts"
	"github.com/MrWong99/happysentences/pkg/provider/tts/coqui"
	"github.com/MrWong99/happysentences/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/happysentences/pkg/provider/tts/openai"
	"github.com/MrWong99/happysentences/pkg/provider/tts/placeholder"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the API directly so JSON mode maps onto response_format.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other backend goes through any-llm-go with optional APIKey + BaseURL.
	for _, providerName := range anyllm.Backends() {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Premium synthesis ─────────────────────────────────────────────────────
	reg.RegisterTTS("placeholder", func(config.ProviderEntry) (tts.Provider, error) {
		return placeholder.New(), nil
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, oaitts.WithVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if spk := optString(entry.Options, "speaker"); spk != "" {
			opts = append(opts, coqui.WithSpeaker(spk))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Host speech ───────────────────────────────────────────────────────────
	reg.RegisterSpeech("espeak", func(c config.SpeechConfig) (speech.Engine, error) {
		var opts []espeak.Option
		if c.Binary != "" {
			opts = append(opts, espeak.WithBinary(c.Binary))
		}
		return espeak.New(opts...), nil
	})

	// "none" runs without host speech; the speech routes answer 503.
	reg.RegisterSpeech("none", func(config.SpeechConfig) (speech.Engine, error) {
		return nil, nil
	})

	for _, kind := range []string{"llm", "tts", "speech"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the providers named in cfg. LLM and synthesis
// backends are wrapped in a fallback chain so every backend gets its own
// circuit breaker. A backend that cannot be built (for example because its API
// key is missing) is skipped with a warning; when none can be built the slot
// stays nil and the matching routes report that the service is not
// configured.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	llms := append([]config.ProviderEntry{cfg.Generate.Provider}, cfg.Generate.Fallbacks...)
	ps.LLM = buildChain("llm", llms, reg.CreateLLM,
		func(p llm.Provider, name string) *resilience.LLMFallback {
			return resilience.NewLLMFallback(p, name, fallbackConfig("llm"))
		})

	synths := append([]config.ProviderEntry{cfg.Premium.Synthesizer}, cfg.Premium.Fallbacks...)
	ps.TTS = buildChain("tts", synths, reg.CreateTTS,
		func(p tts.Provider, name string) *resilience.TTSFallback {
			return resilience.NewTTSFallback(p, name, fallbackConfig("tts"))
		})

	if name := cfg.Speech.Engine; name != "" {
		e, err := reg.CreateSpeech(cfg.Speech)
		if err != nil {
			return nil, fmt.Errorf("create speech engine %q: %w", name, err)
		}
		if e != nil {
			ps.Speech = e
			slog.Info("provider created", "kind", "speech", "name", name, "supported", e.Supported())
		}
	}
	return ps, nil
}

// fallbackConfig reports failed backend calls and breaker transitions on the
// shared metrics. Breakers are named after their backend, e.g. "openai#2".
func fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Info("provider breaker changed state", "kind", kind, "breaker", name, "from", from, "to", to)
				observe.DefaultMetrics().RecordBreakerTransition(context.Background(), kind+":"+name, to.String())
			},
		},
		OnFailure: func(entry string, err error) {
			observe.DefaultMetrics().RecordProviderError(context.Background(), kind+":"+entry, failureKind(err))
		},
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, llm.ErrRefused):
		return "refused"
	default:
		return "error"
	}
}

// chain is the part of a fallback wrapper buildChain needs.
type chain[P any] interface {
	AddFallback(name string, p P)
}

// buildChain creates each entry and returns the first one wrapped by wrap with
// the rest added as fallbacks. It returns the zero P when no entry could be
// built.
func buildChain[P any, W chain[P]](
	kind string,
	entries []config.ProviderEntry,
	create func(config.ProviderEntry) (P, error),
	wrap func(p P, name string) W,
) P {
	var (
		zero    P
		wrapper W
		built   int
	)
	for i, entry := range entries {
		if entry.Name == "" {
			continue
		}
		name := entry.Name
		if i > 0 {
			name = fmt.Sprintf("%s#%d", entry.Name, i)
		}
		p, err := create(entry)
		if err != nil {
			if errors.Is(err, config.ErrProviderNotRegistered) {
				slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
			} else {
				slog.Warn("provider could not be created, skipping", "kind", kind, "name", entry.Name, "err", err)
			}
			continue
		}
		if built == 0 {
			wrapper = wrap(p, name)
		} else {
			wrapper.AddFallback(name, p)
		}
		built++
		slog.Info("provider created", "kind", kind, "name", entry.Name, "model", entry.Model, "fallback", i > 0)
	}
	if built == 0 {
		return zero
	}
	if p, ok := any(wrapper).(P); ok {
		return p
	}
	return zero
}

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
