package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/happysentences/internal/kv"
	"github.com/MrWong99/happysentences/internal/resilience"
	resmock "github.com/MrWong99/happysentences/internal/resilience/mock"
	speechmock "github.com/MrWong99/happysentences/pkg/provider/speech/mock"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New(Checker{Name: "storage", Check: failWith("down")}).Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 even with a failing checker", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode(t, rec)
	if body.Status != "ok" || body.Uptime == "" {
		t.Errorf("body = %+v", body)
	}
	if body.Checks != nil {
		t.Errorf("liveness must not run checks, got %v", body.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "storage", Check: pass}, {Name: "speech", Check: pass}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"storage": "ok", "speech": "ok"},
		},
		{
			name:       "one fails",
			checkers:   []Checker{{Name: "storage", Check: failWith("connection refused")}, {Name: "speech", Check: pass}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"storage": "fail: connection refused", "speech": "ok"},
		},
		{
			name:       "all fail",
			checkers:   []Checker{{Name: "storage", Check: failWith("timeout")}, {Name: "speech", Check: failWith("no voices")}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"storage": "fail: timeout", "speech": "fail: no voices"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tt.checkers...).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			body := decode(t, rec)
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("checks[%q] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunInParallel(t *testing.T) {
	t.Parallel()
	// Each check waits for the other, so a sequential run would hang until
	// the check timeout.
	var wg sync.WaitGroup
	wg.Add(2)
	meet := func(context.Context) error {
		wg.Done()
		wg.Wait()
		return nil
	}
	rec := httptest.NewRecorder()
	New(Checker{Name: "a", Check: meet}, Checker{Name: "b", Check: meet}).
		Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, body %s", rec.Code, rec.Body)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestStorageCheck(t *testing.T) {
	store := kv.NewMemory()
	c := StorageCheck(store)
	if c.Name != "storage" {
		t.Errorf("Name = %q", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	_ = store.Close()
	if err := c.Check(context.Background()); !errors.Is(err, kv.ErrClosed) {
		t.Fatalf("closed store: err = %v, want kv.ErrClosed", err)
	}
}

func TestSpeechCheck(t *testing.T) {
	tests := []struct {
		name    string
		engine  *speechmock.Engine
		wantErr string
	}{
		{"supported without voices", &speechmock.Engine{}, ""},
		{"unsupported", &speechmock.Engine{Unsupported: true}, "not supported"},
		{"voice error", &speechmock.Engine{VoicesErr: errors.New("dbus down")}, "dbus down"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SpeechCheck(tt.engine).Check(context.Background())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}

	if err := SpeechCheck(nil).Check(context.Background()); err != nil {
		t.Fatalf("nil engine: %v", err)
	}
}

func TestBreakerCheck(t *testing.T) {
	clk := resmock.NewClock(time.Unix(0, 0))
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "premium",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		HalfOpenMax:  1,
		Clock:        clk,
	})
	c := BreakerCheck(cb)
	if c.Name != "breaker:premium" {
		t.Errorf("Name = %q", c.Name)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("closed breaker: %v", err)
	}

	_ = cb.Execute(func() error { return errors.New("down") })
	if err := c.Check(context.Background()); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("open breaker: err = %v", err)
	}

	clk.Advance(time.Minute)
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("half-open breaker: %v", err)
	}
}
