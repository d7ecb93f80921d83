package observe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMiddleware_SetsCorrelationIDAndSpan(t *testing.T) {
	m, reader := newTestMetrics(t)
	exp := useTestTracer(t)

	var captured string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

	if len(captured) != 32 {
		t.Errorf("correlation ID = %q, want 32 hex characters", captured)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != captured {
		t.Errorf("X-Correlation-ID = %q, want %q", got, captured)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "HTTP GET /probe" {
		t.Fatalf("spans = %v, want one named HTTP GET /probe", spans)
	}

	met := findMetric(collect(t, reader), "cefrj.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("duration histogram = %+v, want a single sample", met.Data)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	m, _ := newTestMetrics(t)
	useTestTracer(t)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	var captured string
	handler := Middleware(m)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		captured = CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != traceID {
		t.Errorf("trace ID = %q, want %q", captured, traceID)
	}
}

func TestHandler_Routes(t *testing.T) {
	m, _ := newTestMetrics(t)
	srv := httptest.NewServer(Handler(m))
	t.Cleanup(srv.Close)

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/metrics", http.StatusOK, "# HELP"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.body != "" {
				body, err := io.ReadAll(resp.Body)
				if err != nil {
					t.Fatal(err)
				}
				if !strings.Contains(string(body), tt.body) {
					t.Errorf("body = %q, want it to contain %q", body, tt.body)
				}
			}
		})
	}
}
