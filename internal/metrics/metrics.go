package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry so
// tests can construct instances without double-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
	checkouts     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		registry: registry,
		httpRequests: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchpad_http_requests_total",
				Help: "HTTP requests by method, path pattern, and status.",
			},
			[]string{"method", "path", "status"},
		),
		webhookEvents: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchpad_webhook_events_total",
				Help: "Stripe webhook events by type and handling result.",
			},
			[]string{"type", "result"},
		),
		checkouts: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "launchpad_checkout_sessions_total",
				Help: "Checkout sessions successfully created.",
			},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, path string, status int) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// WebhookEvent records a processed webhook. Result is one of: handled,
// ignored, skipped, rejected, failed.
func (m *Metrics) WebhookEvent(eventType, result string) {
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) CheckoutSessionCreated() {
	m.checkouts.Inc()
}
