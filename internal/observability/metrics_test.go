package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/partsledger/partsledger/internal/shared"
)

var _ shared.OperationRecorder = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesLedgerOperations(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveOperation("sale_create", "ok")
	metrics.ObserveOperation("sale_create", "business_rule")
	metrics.ObserveOperation("sale_create", "ok")

	body := scrape(t, metrics)
	if !strings.Contains(body, `partsledger_ledger_operations_total{operation="sale_create",result="ok"} 2`) {
		t.Fatalf("expected ok counter of 2, got: %s", body)
	}
	if !strings.Contains(body, `partsledger_ledger_operations_total{operation="sale_create",result="business_rule"} 1`) {
		t.Fatalf("expected business_rule counter, got: %s", body)
	}
}

func TestHooksFeedOperationCounter(t *testing.T) {
	metrics := NewMetrics()
	hooks := shared.Hooks{Metrics: metrics}
	hooks.Observe("payment_add", nil)
	hooks.Observe("payment_add", shared.Classify(shared.ErrValidation, "bad mode"))

	body := scrape(t, metrics)
	if !strings.Contains(body, `partsledger_ledger_operations_total{operation="payment_add",result="validation"} 1`) {
		t.Fatalf("expected validation result, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveOperation("sale_create", "ok")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsBody := scrape(t, metrics)
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}
