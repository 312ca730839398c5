// Package metrics exposes the Prometheus collectors of the mint service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the service collectors on a private Prometheus registry.
// A nil *Registry is valid and records nothing.
type Registry struct {
	registry           *prometheus.Registry
	requestsTotal      *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	finalizationsTotal *prometheus.CounterVec
	retryAttemptsTotal *prometheus.CounterVec
	idempotentReplays  prometheus.Counter
	deadLetterDepth    prometheus.Gauge
}

func New() *Registry {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "degenmint_inscription_requests_total",
		Help: "Inscription request creations by result",
	}, []string{"status"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "degenmint_verifications_total",
		Help: "Payment verification calls by outcome",
	}, []string{"outcome"})

	finalizations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "degenmint_finalizations_total",
		Help: "Inscription finalization attempts by result",
	}, []string{"result"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "degenmint_retry_attempts_total",
		Help: "Retry attempts for finalization",
	}, []string{"result"})

	replays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "degenmint_idempotent_replays_total",
		Help: "Create calls answered from the idempotency store",
	})

	dlq := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "degenmint_dlq_depth",
		Help: "Number of failed finalizations in the dead letter directory",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(requests, verifications, finalizations, retries, replays, dlq)

	return &Registry{
		registry:           r,
		requestsTotal:      requests,
		verificationsTotal: verifications,
		finalizationsTotal: finalizations,
		retryAttemptsTotal: retries,
		idempotentReplays:  replays,
		deadLetterDepth:    dlq,
	}
}

func (m *Registry) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Registry) IncRequest(status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(status).Inc()
}

func (m *Registry) IncVerification(outcome string) {
	if m == nil {
		return
	}
	m.verificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Registry) IncFinalization(result string) {
	if m == nil {
		return
	}
	m.finalizationsTotal.WithLabelValues(result).Inc()
}

func (m *Registry) IncRetry(result string) {
	if m == nil {
		return
	}
	m.retryAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *Registry) IncReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}

func (m *Registry) SetDLQDepth(depth int) {
	if m == nil {
		return
	}
	m.deadLetterDepth.Set(float64(depth))
}
