// Package app wires the Happy Sentences components into a running service.
//
// The App struct owns the full lifecycle: New opens storage and builds every
// component from the config, Handler exposes them over HTTP, and Shutdown
// tears everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithMetrics, WithMetricsHandler, WithClock). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/happysentences/internal/config"
	"github.com/MrWong99/happysentences/internal/entitlement"
	"github.com/MrWong99/happysentences/internal/generate"
	"github.com/MrWong99/happysentences/internal/health"
	"github.com/MrWong99/happysentences/internal/kv"
	"github.com/MrWong99/happysentences/internal/kv/postgres"
	"github.com/MrWong99/happysentences/internal/kv/sqlite"
	"github.com/MrWong99/happysentences/internal/library"
	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/internal/selftest"
	"github.com/MrWong99/happysentences/internal/server"
	"github.com/MrWong99/happysentences/internal/speaker"
	"github.com/MrWong99/happysentences/pkg/provider/llm"
	"github.com/MrWong99/happysentences/pkg/provider/speech"
	"github.com/MrWong99/happysentences/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main via the config registry.
type Providers struct {
	// LLM backs sentence generation.
	LLM llm.Provider

	// TTS backs the premium voice route.
	TTS tts.Provider

	// Speech is the host speech engine. Nil disables the speech routes.
	Speech speech.Engine
}

// breakerSource is implemented by the fallback wrappers so their circuit
// breakers can be reported on /readyz.
type breakerSource interface {
	Breakers() []*resilience.CircuitBreaker
}

// App owns all component lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store          kv.Store
	metrics        *observe.Metrics
	metricsHandler http.Handler
	clock          resilience.Clock

	library      *library.Store
	entitlements *entitlement.Manager
	generator    *generate.Generator
	speaker      *speaker.Speaker
	selftest     *selftest.Runner
	health       *health.Handler
	breakers     []*resilience.CircuitBreaker
	server       *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a key-value store instead of opening the configured
// backend. The App does not close an injected store.
func WithStore(s kv.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metric instruments instead of the global defaults.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler mounted on /metrics, usually
// [observe.Telemetry.Handler].
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithClock sets the clock shared by the library, entitlements and speaker.
func WithClock(c resilience.Clock) Option {
	return func(a *App) { a.clock = c }
}

// New creates an App by wiring all components together. The providers come
// from main (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		clock:     resilience.SystemClock{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	a.library = library.New(a.store, library.WithClock(a.clock))
	a.entitlements = entitlement.NewManager(a.store, entitlement.WithClock(a.clock))

	gcfg := generate.Config{
		Temperature:      cfg.Generate.Temperature,
		RetryTemperature: cfg.Generate.RetryTemperature,
		MaxTokens:        cfg.Generate.MaxTokens,
	}
	if providers.LLM == nil {
		slog.Warn("no llm provider configured, generation is disabled")
	}
	a.generator = generate.New(providers.LLM, gcfg, generate.WithMetrics(a.metrics))

	a.initSpeaker(ctx)
	a.initHealth()

	var serverOpts []server.Option
	if a.metricsHandler != nil {
		serverOpts = append(serverOpts, server.WithMetricsHandler(a.metricsHandler))
	}
	a.server = server.New(server.Config{
		Production:    cfg.Server.Production(),
		DevBypass:     cfg.Server.DevBypassEnabled(),
		MaxTextLength: cfg.Premium.MaxTextLength,
		DefaultVoice:  cfg.Premium.Voice,
		SentencePause: cfg.Speech.SentencePause,
	}, server.Deps{
		Generator:    a.generator,
		Synthesizer:  providers.TTS,
		Entitlements: a.entitlements,
		Library:      a.library,
		Speaker:      a.speaker,
		SelfTest:     a.selftest,
		Health:       a.health,
		Metrics:      a.metrics,
		Breakers:     a.breakers,
	}, serverOpts...)
	return a, nil
}

// OpenStore opens the key-value backend selected by cfg.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (kv.Store, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return kv.NewMemory(), nil
	case config.StorageFile, "":
		return kv.OpenFile(cfg.Path)
	case config.StorageSQLite:
		return sqlite.Open(ctx, cfg.Path)
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	store, err := OpenStore(ctx, a.cfg.Storage)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	slog.Info("storage opened", "backend", a.cfg.Storage.Backend)
	return nil
}

// initSpeaker builds the speaker and self-test runner when a speech engine is
// configured, and preloads the voice list.
func (a *App) initSpeaker(ctx context.Context) {
	engine := a.providers.Speech
	if engine == nil {
		slog.Info("no speech engine configured, speech routes are disabled")
		return
	}
	a.speaker = speaker.New(engine, SpeakerConfig(a.cfg.Speech),
		speaker.WithClock(a.clock),
		speaker.WithMetrics(a.metrics),
	)
	a.selftest = selftest.New(a.speaker, selftest.WithClock(a.clock))
	a.closers = append(a.closers, func() error {
		a.speaker.Stop()
		return nil
	})

	n, err := a.speaker.Preload(ctx)
	if err != nil {
		slog.Warn("speech voice preload failed", "err", err)
		return
	}
	if n == 0 && engine.Supported() {
		slog.Warn("speech engine reported no voices yet")
	}
}

func (a *App) initHealth() {
	checks := []health.Checker{health.StorageCheck(a.store)}
	if a.providers.Speech != nil {
		checks = append(checks, health.SpeechCheck(a.providers.Speech))
	}
	for _, p := range []any{a.providers.LLM, a.providers.TTS} {
		if src, ok := p.(breakerSource); ok {
			a.breakers = append(a.breakers, src.Breakers()...)
		}
	}
	for _, cb := range a.breakers {
		checks = append(checks, health.BreakerCheck(cb))
	}
	a.health = health.New(checks...)
}

// SpeakerConfig converts the speech section of the config into a
// [speaker.Config].
func SpeakerConfig(c config.SpeechConfig) speaker.Config {
	return speaker.Config{
		StabilizeDelay: c.StabilizeDelay,
		Timeout:        c.Timeout,
		Poll: resilience.RetryPolicy{
			Name:        "voice poll",
			MaxAttempts: c.VoicePoll.Attempts,
			Backoff:     c.VoicePoll.Backoff,
		},
		UserAgent:     c.UserAgent,
		SentencePause: c.SentencePause,
	}
}

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Library returns the sentence library.
func (a *App) Library() *library.Store { return a.library }

// Entitlements returns the entitlement manager.
func (a *App) Entitlements() *entitlement.Manager { return a.entitlements }

// Generator returns the sentence generator.
func (a *App) Generator() *generate.Generator { return a.generator }

// Speaker returns the host speaker, or nil when no engine is configured.
func (a *App) Speaker() *speaker.Speaker { return a.speaker }

// SelfTest returns the self-test runner, or nil when no engine is configured.
func (a *App) SelfTest() *selftest.Runner { return a.selftest }

// Shutdown tears down all components in reverse init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
