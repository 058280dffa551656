// Package health serves the liveness and readiness probes.
//
// GET /healthz answers 200 for as long as the process can serve HTTP. GET
// /readyz runs every registered [Checker] in parallel and answers 503 when
// any of them fails, so a load balancer stops routing generate and premium
// traffic while the store is gone or a provider breaker is open.
//
// Both bodies look like
//
//	{"status":"fail","uptime":"3m2s","checks":{"storage":"ok","breaker:openai":"fail: circuit breaker is open"}}
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/happysentences/internal/resilience"
	"github.com/MrWong99/happysentences/pkg/provider/speech"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	// Name keys the check in the response, e.g. "storage" or "breaker:openai".
	Name string

	// Check must give up when ctx is done.
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed at construction.
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New returns a handler that runs checkers on every readiness probe.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: append([]Checker(nil), checkers...),
		started:  time.Now(),
	}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok", Uptime: h.uptime()})
}

// Readyz answers 200 when every check passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	outcomes := h.run(r.Context())

	res := result{Status: "ok", Uptime: h.uptime(), Checks: make(map[string]string, len(outcomes))}
	code := http.StatusOK
	for i, err := range outcomes {
		name := h.checkers[i].Name
		if err == nil {
			res.Checks[name] = "ok"
			continue
		}
		res.Checks[name] = "fail: " + err.Error()
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	if code != http.StatusOK {
		slog.Warn("readiness check failed", "checks", res.Checks)
	}
	writeJSON(w, code, res)
}

// run executes all checks concurrently. The i-th error belongs to the i-th
// checker.
func (h *Handler) run(ctx context.Context) []error {
	outcomes := make([]error, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)
			if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("no answer within %s", checkTimeout)
			}
			outcomes[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (h *Handler) uptime() string {
	return time.Since(h.started).Round(time.Second).String()
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// Pinger is anything with a connectivity probe, such as a kv.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageCheck fails when the store does not answer a ping.
func StorageCheck(p Pinger) Checker {
	return Checker{Name: "storage", Check: p.Ping}
}

// SpeechCheck fails when host speech is unsupported or its voices cannot be
// listed. An empty list passes because engines load voices lazily. A nil
// engine means host speech is off and always passes.
func SpeechCheck(e speech.Engine) Checker {
	return Checker{Name: "speech", Check: func(ctx context.Context) error {
		if e == nil {
			return nil
		}
		if !e.Supported() {
			return errors.New("speech engine not supported on this host")
		}
		if _, err := e.Voices(ctx); err != nil {
			return fmt.Errorf("list voices: %w", err)
		}
		return nil
	}}
}

// BreakerCheck fails while cb is open. Half-open passes so probe traffic can
// reach the provider.
func BreakerCheck(cb *resilience.CircuitBreaker) Checker {
	return Checker{Name: "breaker:" + cb.Name(), Check: func(context.Context) error {
		if cb.State() == resilience.StateOpen {
			return resilience.ErrCircuitOpen
		}
		return nil
	}}
}
