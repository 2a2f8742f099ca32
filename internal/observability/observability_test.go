package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestMiddlewareCountsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsAndTracingMiddleware(noop.NewTracerProvider().Tracer("test"), "obs-test"))
	r.Get("/api/devices/{deviceId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(requestCounter.WithLabelValues("obs-test", "/api/devices/{deviceId}", "GET", "404"))
	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/devices/"+id, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rr.Code)
		}
		if rr.Header().Get("Trace-ID") == "" {
			t.Fatalf("missing Trace-ID header")
		}
	}
	after := testutil.ToFloat64(requestCounter.WithLabelValues("obs-test", "/api/devices/{deviceId}", "GET", "404"))
	if after-before != 2 {
		t.Fatalf("expected 2 counted requests, got %v", after-before)
	}
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(fallbackCounter.WithLabelValues("classify", "TIMEOUT"))
	RecordFallback("classify", "TIMEOUT")
	if got := testutil.ToFloat64(fallbackCounter.WithLabelValues("classify", "TIMEOUT")); got != before+1 {
		t.Fatalf("fallback counter = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(dispatchCounter.WithLabelValues("sent"))
	RecordDispatch("sent")
	if got := testutil.ToFloat64(dispatchCounter.WithLabelValues("sent")); got != before+1 {
		t.Fatalf("dispatch counter = %v", got)
	}
}

func TestSetupWithoutExporter(t *testing.T) {
	shutdown, handler, tracer, err := Setup(context.Background(), "obs-test", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown()
	if handler == nil || tracer == nil {
		t.Fatalf("expected handler and tracer")
	}
}

func TestSetupLoggingJSON(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupLogging(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "zone_id", "1")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"zone_id":"1"`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
