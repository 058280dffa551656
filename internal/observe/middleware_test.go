package observe

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// serveThrough runs one request through Middleware wrapped around a mux that
// routes "GET /api/sentences/{id}" to status.
func serveThrough(t *testing.T, status int, req *http.Request) (*httptest.ResponseRecorder, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useTestTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sentences/{id}", func(w http.ResponseWriter, r *http.Request) {
		if CorrelationID(r.Context()) == "" {
			t.Error("handler context carries no trace")
		}
		w.WriteHeader(status)
	})

	rec := httptest.NewRecorder()
	Middleware(m)(mux).ServeHTTP(rec, req)
	return rec, reader, exp
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	rec, reader, exp := serveThrough(t, http.StatusOK, httptest.NewRequest(http.MethodGet, "/api/sentences/abc-123", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "GET /api/sentences/{id}" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if got := rec.Header().Get(CorrelationHeader); got != spans[0].SpanContext.TraceID().String() {
		t.Errorf("%s = %q, want the span's trace ID", CorrelationHeader, got)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "happysentences.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Fatalf("data points = %+v", hist.DataPoints)
	}
	attrs := hist.DataPoints[0].Attributes
	if v, _ := attrs.Value("route"); v.AsString() != "GET /api/sentences/{id}" {
		t.Errorf("route label = %q, must be the pattern, not the raw path", v.AsString())
	}
	if v, _ := attrs.Value("status"); v.AsString() != "200" {
		t.Errorf("status label = %q", v.AsString())
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	rec, _, exp := serveThrough(t, http.StatusOK, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 from the mux", rec.Code)
	}
	s := exp.GetSpans()[0]
	if s.Name != routeOther {
		t.Errorf("span name = %q, want %q", s.Name, routeOther)
	}
	found := false
	for _, a := range s.Attributes {
		if a.Key == "http.response.status_code" && a.Value.AsInt64() == 404 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code=404")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest(http.MethodGet, "/api/sentences/x", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")

	rec, _, _ := serveThrough(t, http.StatusOK, req)
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

func TestMiddleware_NilMetrics(t *testing.T) {
	useTestTracer(t)
	h := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		route  string
		status int
		want   slog.Level
	}{
		{"POST /api/generate", 200, slog.LevelInfo},
		{"GET /readyz", 200, slog.LevelDebug},
		{"GET /readyz", 503, slog.LevelError},
		{"POST /api/tts/premium", 402, slog.LevelWarn},
		{routeOther, 404, slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := logLevel(tt.route, tt.status); got != tt.want {
			t.Errorf("logLevel(%q, %d) = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Fatal("expected error from a non-hijackable writer")
	}
	if rec.Unwrap() == nil {
		t.Fatal("Unwrap returned nil")
	}
}
