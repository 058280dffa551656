// Package server exposes the sentence generator, the premium voice route, the
// host speaker, the daily library and the entitlement state over HTTP.
//
// Every response body is JSON. Failures use {"error": "..."} with a status
// code; speech routes always answer 200 with a types.Outcome because the
// pipeline reports failures as outcomes, not errors. Diagnostics routes under
// /debug exist only outside production.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/happysentences/internal/entitlement"
	"github.com/MrWong99/happysentences/internal/generate"
	"github.com/MrWong99/happysentences/internal/health"
	"github.com/MrWong99/happysentences/internal/library"
	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/internal/selftest"
	"github.com/MrWong99/happysentences/internal/speaker"
	"github.com/MrWong99/happysentences/pkg/provider/tts"
)

// maxBodyBytes caps request bodies. The longest accepted text is 1000
// characters, so this leaves ample room for JSON framing.
const maxBodyBytes = 64 << 10

// Config holds the behaviour switches of the HTTP layer.
type Config struct {
	// Production hides the /debug routes and disables the dev bypass.
	Production bool

	// DevBypass lets requests carrying "X-Dev-Bypass: true" skip the
	// entitlement check on the premium route.
	DevBypass bool

	// MaxTextLength is the longest premium text in characters. Default: 1000.
	MaxTextLength int

	// DefaultVoice is the premium voice used when a request names none.
	DefaultVoice string

	// SentencePause separates sentences in multi-sentence speak requests.
	// Default: the speaker's configured pause.
	SentencePause time.Duration
}

// Deps are the components the server routes to. Speaker and SelfTest may be
// nil when the host has no speech engine; the speech routes then answer 503.
// Generator and Synthesizer may be nil when no backend could be built; their
// routes answer with an error message instead of audio or sentences.
type Deps struct {
	Generator    *generate.Generator
	Synthesizer  tts.Provider
	Entitlements *entitlement.Manager
	Library      *library.Store
	Speaker      *speaker.Speaker
	SelfTest     *selftest.Runner
	Health       *health.Handler
	Metrics      *observe.Metrics

	// Breakers are the provider circuit breakers listed and reset under
	// /debug/breakers.
	Breakers []*resilience.CircuitBreaker
}

// Server routes HTTP requests to the application components.
type Server struct {
	cfg  Config
	deps Deps

	metricsHandler http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithMetricsHandler replaces the Prometheus handler mounted on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// New creates a server. Nil Health and Metrics are replaced by an empty
// health handler and [observe.DefaultMetrics].
func New(cfg Config, deps Deps, opts ...Option) *Server {
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = 1000
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	s := &Server{cfg: cfg, deps: deps, metricsHandler: promhttp.Handler()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the complete route tree wrapped in [observe.Middleware].
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.deps.Health.Register(mux)
	mux.Handle("GET /metrics", s.metricsHandler)

	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/tts/premium", s.handlePremium)
	mux.HandleFunc("POST /api/tts/speak", s.handleSpeak)
	mux.HandleFunc("POST /api/tts/stop", s.handleStop)
	mux.HandleFunc("GET /api/tts/available", s.handleAvailable)

	mux.HandleFunc("GET /api/sentences", s.handleListSentences)
	mux.HandleFunc("GET /api/sentences/today", s.handleTodaySentence)
	mux.HandleFunc("GET /api/sentences/recent", s.handleRecentSentences)
	mux.HandleFunc("GET /api/sentences/favorites", s.handleFavoriteSentences)
	mux.HandleFunc("GET /api/sentences/date/{date}", s.handleSentenceByDate)
	mux.HandleFunc("POST /api/sentences", s.handleSaveSentence)
	mux.HandleFunc("POST /api/sentences/{id}/favorite", s.handleToggleFavorite)
	mux.HandleFunc("DELETE /api/sentences/{id}", s.handleDeleteSentence)

	mux.HandleFunc("GET /api/entitlement", s.handleGetEntitlement)

	if !s.cfg.Production {
		mux.HandleFunc("POST /api/entitlement/credits", s.handleAddCredits)
		mux.HandleFunc("POST /api/entitlement/adpass", s.handleGrantAdPass)
		mux.HandleFunc("POST /api/entitlement/subscription", s.handleSubscribe)

		mux.HandleFunc("GET /debug/tts/status", s.handleDebugStatus)
		mux.HandleFunc("GET /debug/tts/ws", s.handleDebugStream)
		mux.HandleFunc("POST /debug/tts/selftest", s.handleDebugSelfTest)
		mux.HandleFunc("POST /debug/tts/reset", s.handleDebugReset)
		mux.HandleFunc("GET /debug/breakers", s.handleListBreakers)
		mux.HandleFunc("POST /debug/breakers/reset", s.handleResetBreakers)
	}

	return observe.Middleware(s.deps.Metrics)(mux)
}

type errorBody struct {
	Error          string `json:"error"`
	RequiresAction string `json:"requiresAction,omitempty"`
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

var errEmptyBody = errors.New("request body is empty")

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}
