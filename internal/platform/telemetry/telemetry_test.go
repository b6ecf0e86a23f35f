package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProvider_ObserveBackend(t *testing.T) {
	p := NewProvider()
	p.ObserveBackend("patients", 200, 20*time.Millisecond)
	p.ObserveBackend("patients", 200, 30*time.Millisecond)
	p.ObserveBackend("patients", 0, time.Millisecond)

	if got := testutil.ToFloat64(p.backendRequests.WithLabelValues("patients", "200")); got != 2 {
		t.Errorf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(p.backendRequests.WithLabelValues("patients", "error")); got != 1 {
		t.Errorf("expected 1 transport error, got %v", got)
	}
}

func TestProvider_NilSafe(t *testing.T) {
	var p *Provider
	p.ObserveBackend("x", 500, time.Second)
	p.TokenRefresh("ok")
	p.SubscriptionRefresh("ok")
	p.EntitlementDenied("Analytics Dashboard")
}

func TestProvider_Counters(t *testing.T) {
	p := NewProvider()
	p.TokenRefresh("ok")
	p.TokenRefresh("failed")
	p.TokenRefresh("failed")
	p.EntitlementDenied("Analytics Dashboard")

	if got := testutil.ToFloat64(p.tokenRefreshes.WithLabelValues("failed")); got != 2 {
		t.Errorf("expected 2 failed refreshes, got %v", got)
	}
	if got := testutil.ToFloat64(p.entitlementDenials.WithLabelValues("Analytics Dashboard")); got != 1 {
		t.Errorf("expected 1 denial, got %v", got)
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	p := NewProvider()
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", p.Handler())

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+id, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	if got := testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/api/v1/patients/:id", "200")); got != 3 {
		t.Errorf("expected 3 requests on the route pattern, got %v", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "console_http_requests_total") {
		t.Error("expected console_http_requests_total in exposition output")
	}
}
