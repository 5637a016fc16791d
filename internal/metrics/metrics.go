// Package metrics exposes the enricher's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shpitdev/contact-enricher/internal/enrich"
	"github.com/shpitdev/contact-enricher/internal/resilience/circuit"
	"github.com/shpitdev/contact-enricher/internal/resilience/retry"
)

type Metrics struct {
	RetryAttempts       *prometheus.CounterVec
	RetryAttemptLatency *prometheus.HistogramVec
	CircuitState        *prometheus.GaugeVec
	CircuitTransitions  *prometheus.CounterVec
	CircuitRejections   *prometheus.CounterVec
	EnrichmentsTotal    prometheus.Counter
	EnrichmentLatency   prometheus.Histogram
	EnrichmentScore     prometheus.Histogram
	SourceOutcomes      *prometheus.CounterVec
}

// New registers every instrument on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RetryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_retry_attempts_total",
			Help: "Attempts made through the retry executor, by policy and outcome",
		}, []string{"policy", "outcome"}),
		RetryAttemptLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enricher_retry_attempt_duration_seconds",
			Help:    "Latency of single attempts made through the retry executor",
			Buckets: prometheus.DefBuckets,
		}, []string{"policy"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "enricher_circuit_state",
			Help: "Circuit breaker state per dependency (0=closed, 1=open, 2=half_open)",
		}, []string{"breaker"}),
		CircuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_circuit_transitions_total",
			Help: "Circuit breaker state transitions per dependency",
		}, []string{"breaker", "to"}),
		CircuitRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_circuit_rejections_total",
			Help: "Calls short-circuited by an open breaker",
		}, []string{"breaker"}),
		EnrichmentsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "enricher_enrichments_total",
			Help: "Completed enrichments",
		}),
		EnrichmentLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_enrichment_duration_seconds",
			Help:    "Wall time of one enrichment across all sources",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		EnrichmentScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_enrichment_confidence",
			Help:    "Merged confidence of completed enrichments",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		SourceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_source_outcomes_total",
			Help: "Per-source outcome of enrichments (ok, degraded, failed)",
		}, []string{"source", "outcome"}),
	}
}

// ObserveAttempt is a retry.Executor observer.
func (m *Metrics) ObserveAttempt(a retry.Attempt) {
	outcome := "success"
	switch {
	case a.Err != nil && a.WillRetry:
		outcome = "retry"
	case a.Err != nil && retry.KindOf(a.Err) == retry.KindCircuitOpen:
		outcome = "circuit_open"
	case a.Err != nil:
		outcome = "failure"
	}
	m.RetryAttempts.WithLabelValues(a.Policy, outcome).Inc()
	m.RetryAttemptLatency.WithLabelValues(a.Policy).Observe(a.Elapsed.Seconds())
}

// BreakerTransition is a circuit.WithStateChange hook.
func (m *Metrics) BreakerTransition(t circuit.Transition) {
	m.CircuitState.WithLabelValues(t.Name).Set(float64(t.To))
	m.CircuitTransitions.WithLabelValues(t.Name, t.To.String()).Inc()
}

// BreakerRejected is a circuit.WithRejectHook hook.
func (m *Metrics) BreakerRejected(name string) {
	m.CircuitRejections.WithLabelValues(name).Inc()
}

// SeedBreakers publishes the current state of every breaker.
func (m *Metrics) SeedBreakers(snaps []circuit.Snapshot) {
	for _, s := range snaps {
		m.CircuitState.WithLabelValues(s.Name).Set(float64(s.State))
	}
}

// ObserveEnrichment is an aggregate.WithObserver hook.
func (m *Metrics) ObserveEnrichment(res enrich.Result, elapsed time.Duration) {
	m.EnrichmentsTotal.Inc()
	m.EnrichmentLatency.Observe(elapsed.Seconds())
	m.EnrichmentScore.Observe(float64(res.Confidence))
	for _, s := range res.Sources {
		outcome := "ok"
		switch {
		case !s.Contributed():
			outcome = "failed"
		case s.Degraded:
			outcome = "degraded"
		}
		m.SourceOutcomes.WithLabelValues(s.Source, outcome).Inc()
	}
}
