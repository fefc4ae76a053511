// Package metrics holds the prometheus collectors for the summarizer. All
// methods are safe on a nil *Metrics so callers can skip instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Submission outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeIgnored   = "ignored"
	OutcomeStale     = "stale"
)

// Metrics bundles the collectors with their own registry.
type Metrics struct {
	registry       *prometheus.Registry
	submissions    *prometheus.CounterVec
	remoteDuration prometheus.Histogram
	revealRestarts prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "submissions_total",
			Help:      "Document intake attempts by outcome.",
		}, []string{"outcome"}),
		remoteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "summarizer",
			Name:      "remote_request_seconds",
			Help:      "Latency of the summarization request, encode included.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		revealRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "summarizer",
			Name:      "reveal_restarts_total",
			Help:      "Times the reveal restarted for a new summary.",
		}),
	}
	m.registry.MustRegister(m.submissions, m.remoteDuration, m.revealRestarts)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Submission counts one intake outcome.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// RemoteRequest records how long a request took.
func (m *Metrics) RemoteRequest(d time.Duration) {
	if m == nil {
		return
	}
	m.remoteDuration.Observe(d.Seconds())
}

// RevealRestart counts a reveal restart.
func (m *Metrics) RevealRestart() {
	if m == nil {
		return
	}
	m.revealRestarts.Inc()
}
