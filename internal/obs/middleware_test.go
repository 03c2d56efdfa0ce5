package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusRecorderDefaults(t *testing.T) {
	rec := NewStatusRecorder(httptest.NewRecorder())
	if rec.Status() != http.StatusOK {
		t.Fatalf("expected default 200, got %d", rec.Status())
	}
	rec.WriteHeader(http.StatusTeapot)
	if rec.Status() != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Status())
	}
	n, err := rec.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if rec.BytesWritten() != 5 {
		t.Fatalf("expected 5 bytes written, got %d", rec.BytesWritten())
	}
}

func TestHTTPObsRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewHTTPMetrics("khata_test", nil, reg)
	obs := HTTPObs{Metrics: metrics}

	router := chi.NewRouter()
	router.Use(RoutePatternMiddleware)
	router.Use(obs.Middleware)
	router.Get("/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/invoices/abc", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/invoices/{id}", "204"))
	if count != 1 {
		t.Fatalf("expected one request counted, got %v", count)
	}
}

func TestParseBucketsCSV(t *testing.T) {
	buckets := ParseBucketsCSV("5, 100, junk, -2, 50")
	want := []float64{5, 100, 50}
	if len(buckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(buckets))
	}
	for i, b := range buckets {
		if b != want[i] {
			t.Fatalf("bucket %d: want %v got %v", i, want[i], b)
		}
	}
	if got := ParseBucketsCSV("  "); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}

func TestRoutePatternContextRoundTrip(t *testing.T) {
	ctx := WithRoutePattern(nil, "/api/v1/customers")
	if got := RoutePatternFromContext(ctx); got != "/api/v1/customers" {
		t.Fatalf("unexpected pattern %q", got)
	}
	if got := RoutePatternFromContext(nil); got != "" {
		t.Fatalf("expected empty pattern for nil context, got %q", got)
	}
}
