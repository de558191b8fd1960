package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/facilitydesk/internal/listing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/views/{view}")

	req := httptest.NewRequest(http.MethodGet, "/views/assets", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `facilitydesk_http_requests_total{code="418",route="/views/{view}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `facilitydesk_http_request_duration_seconds_bucket{route="/views/{view}"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestListAndBackendMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveFetch("pms/assets", "ok", 120*time.Millisecond)
	metrics.ObserveFetch("pms/assets", "http_5xx", time.Second)
	metrics.LoadCompleted("pms/assets", time.Second, nil)
	metrics.LoadCompleted("pms/assets", time.Second, &listing.FetchError{Resource: "pms/assets", Status: 502})
	metrics.LoadCompleted("pms/assets", time.Second, errors.New("other"))
	metrics.LoadSuperseded("pms/assets")
	metrics.BulkItems("move", "ok", 3)
	metrics.SetActiveViews(2)

	body := scrape(t, metrics)
	for _, want := range []string{
		`facilitydesk_backend_requests_total{outcome="http_5xx",resource="pms/assets"} 1`,
		`facilitydesk_list_loads_total{resource="pms/assets",result="fetch_error"} 1`,
		`facilitydesk_list_loads_total{resource="pms/assets",result="ok"} 1`,
		`facilitydesk_list_loads_total{resource="pms/assets",result="error"} 1`,
		`facilitydesk_list_loads_superseded_total{resource="pms/assets"} 1`,
		`facilitydesk_bulk_items_total{action="move",outcome="ok"} 3`,
		`facilitydesk_active_views 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("x", "ok", time.Second)
	m.LoadSuperseded("x")
	m.BulkItems("move", "ok", 1)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
