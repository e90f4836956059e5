// Package metrics exposes prometheus instrumentation for the pipeline. A nil
// *Metrics is a valid no-op, so library consumers that do not scrape pay
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bpx"

// Metrics holds the pipeline's collectors. Register once per process; the
// attempt outcome label follows the pipeline's Outcome vocabulary.
type Metrics struct {
	attempts           *prometheus.CounterVec
	attemptDuration    prometheus.Histogram
	skippedRewrites    prometheus.Counter
	permitsSigned      prometheus.Counter
	approvalsSubmitted prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		attempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Attempts by outcome class. Aborted means the user cancelled, not a failure.",
			}, []string{"outcome"}),

		attemptDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_duration_seconds",
				Help:      "Wall time of one attempt, simulation retries included.",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			}),

		skippedRewrites: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_rewrites_total",
				Help:      "Swap commands left unrewritten because their input did not match the expected layout. Non-zero values are a risk signal.",
			}),

		permitsSigned: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permits_signed_total",
				Help:      "Input tokens funded with an off-chain permit signature.",
			}),

		approvalsSubmitted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_submitted_total",
				Help:      "Input tokens funded with an on-chain approval transaction.",
			}),
	}
}

func (m *Metrics) IncAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAttemptDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.attemptDuration.Observe(d.Seconds())
}

func (m *Metrics) AddSkippedRewrites(n int) {
	if m == nil || n == 0 {
		return
	}
	m.skippedRewrites.Add(float64(n))
}

func (m *Metrics) IncPermitSigned() {
	if m == nil {
		return
	}
	m.permitsSigned.Inc()
}

func (m *Metrics) IncApprovalSubmitted() {
	if m == nil {
		return
	}
	m.approvalsSubmitted.Inc()
}
