// Package telemetry exposes Prometheus metrics for the console: inbound HTTP
// traffic, outbound backend calls, token refreshes, subscription refreshes and
// entitlement denials. Collectors live on a private registry so tests can
// build as many providers as they like.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "console"

// Provider owns the registry and every collector the console records into.
// All recording methods are safe on a nil *Provider.
type Provider struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	backendRequests     *prometheus.CounterVec
	backendDuration     *prometheus.HistogramVec
	tokenRefreshes      *prometheus.CounterVec
	subscriptionRefresh *prometheus.CounterVec
	entitlementDenials  *prometheus.CounterVec
}

// NewProvider creates a provider with process and Go runtime collectors
// registered alongside the console's own.
func NewProvider() *Provider {
	p := &Provider{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Inbound HTTP requests partitioned by route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Inbound HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		backendRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Calls to the clinic backend partitioned by resource and status.",
			},
			[]string{"resource", "status"},
		),
		backendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Latency of calls to the clinic backend.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"resource"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Access token refresh attempts after a 401.",
			},
			[]string{"result"},
		),
		subscriptionRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_refresh_total",
				Help:      "Subscription state refreshes by outcome (ok, error, stale).",
			},
			[]string{"result"},
		),
		entitlementDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlement_denials_total",
				Help:      "Requests refused because the subscription does not grant a feature.",
			},
			[]string{"feature"},
		),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpRequests,
		p.httpDuration,
		p.backendRequests,
		p.backendDuration,
		p.tokenRefreshes,
		p.subscriptionRefresh,
		p.entitlementDenials,
	)
	return p
}

// Registry returns the underlying registry.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveBackend records one backend call. status is the HTTP status code,
// or 0 when the request never got a response.
func (p *Provider) ObserveBackend(resource string, status int, d time.Duration) {
	if p == nil {
		return
	}
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	p.backendRequests.WithLabelValues(resource, label).Inc()
	p.backendDuration.WithLabelValues(resource).Observe(d.Seconds())
}

// TokenRefresh records the outcome of a refresh-and-retry attempt.
func (p *Provider) TokenRefresh(result string) {
	if p == nil {
		return
	}
	p.tokenRefreshes.WithLabelValues(result).Inc()
}

// SubscriptionRefresh records the outcome of a subscription state refresh.
func (p *Provider) SubscriptionRefresh(result string) {
	if p == nil {
		return
	}
	p.subscriptionRefresh.WithLabelValues(result).Inc()
}

// EntitlementDenied records a request refused for lack of a feature.
func (p *Provider) EntitlementDenied(feature string) {
	if p == nil {
		return
	}
	p.entitlementDenials.WithLabelValues(feature).Inc()
}

// MetricsMiddleware records request counts and latency keyed by the route
// pattern, not the raw path, to keep label cardinality bounded.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			p.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// HTTPHandler exposes the registry as a plain http.Handler.
func (p *Provider) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
