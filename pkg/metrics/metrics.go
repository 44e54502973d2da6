// Package metrics defines the Prometheus collectors of the service.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can take metrics as an optional dependency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "entitle"

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal       *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
	PaymentRequestsTotal    *prometheus.CounterVec
	PaymentRequestDuration  *prometheus.HistogramVec
	EntitlementDeniedTotal  *prometheus.CounterVec
	UsageRecordedTotal      *prometheus.CounterVec
	SubscriptionTransitions *prometheus.CounterVec
	SweeperTransitionsTotal *prometheus.CounterVec
	WebhooksTotal           *prometheus.CounterVec
}

// New creates the collectors and registers them, with the Go and process
// collectors, on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PaymentRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_requests_total",
			Help:      "Calls to payment providers by outcome.",
		}, []string{"provider", "operation", "outcome"}),
		PaymentRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_request_duration_seconds",
			Help:      "Payment provider call latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "operation"}),
		EntitlementDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_denied_total",
			Help:      "Entitlement checks that denied an action.",
		}, []string{"metric"}),
		UsageRecordedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_recorded_total",
			Help:      "Units of usage appended to the ledger.",
		}, []string{"metric"}),
		SubscriptionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_transitions_total",
			Help:      "Subscription status changes by lifecycle event.",
		}, []string{"event", "from", "to"}),
		SweeperTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_transitions_total",
			Help:      "Subscriptions changed by the expiration sweeper.",
		}, []string{"from", "to"}),
		WebhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Inbound payment notifications by source and outcome.",
		}, []string{"source", "outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PaymentRequestsTotal,
		m.PaymentRequestDuration,
		m.EntitlementDeniedTotal,
		m.UsageRecordedTotal,
		m.SubscriptionTransitions,
		m.SweeperTransitionsTotal,
		m.WebhooksTotal,
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PaymentRequest(provider, operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.PaymentRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.PaymentRequestDuration.WithLabelValues(provider, operation).Observe(took.Seconds())
}

func (m *Metrics) EntitlementDenied(metric string) {
	if m == nil {
		return
	}
	m.EntitlementDeniedTotal.WithLabelValues(metric).Inc()
}

func (m *Metrics) UsageRecorded(metric string, amount int64) {
	if m == nil {
		return
	}
	m.UsageRecordedTotal.WithLabelValues(metric).Add(float64(amount))
}

func (m *Metrics) SubscriptionTransition(event, from, to string) {
	if m == nil {
		return
	}
	m.SubscriptionTransitions.WithLabelValues(event, from, to).Inc()
}

func (m *Metrics) SweeperTransition(from, to string) {
	if m == nil {
		return
	}
	m.SweeperTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Webhook(source, outcome string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(source, outcome).Inc()
}

// Middleware records request counts and latency labelled with the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
