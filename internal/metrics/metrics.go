// Package metrics registers the pipeline's Prometheus instruments. The
// status server exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every instrument the pipeline records into.
type Metrics struct {
	CitationsDiscovered prometheus.Counter
	CrawlFailures       prometheus.Counter
	AlertsSent          prometheus.Counter
	AlertsSuppressed    prometheus.Counter
	StageDuration       *prometheus.HistogramVec
	PendingDepth        prometheus.Gauge
	SessionsActive      prometheus.Gauge
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CitationsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citation",
			Name:      "citations_discovered_total",
			Help:      "Citation records appended to the ledger",
		}),
		CrawlFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citation",
			Name:      "crawl_failures_total",
			Help:      "Citation lookups that failed verification",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citation",
			Name:      "alerts_sent_total",
			Help:      "Proximity alert emails delivered",
		}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "citation",
			Name:      "alerts_suppressed_total",
			Help:      "Proximity alerts skipped because the pair was already emailed",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citation",
			Name:      "cycle_stage_duration_seconds",
			Help:      "Reconciliation cycle stage wall time",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		PendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citation",
			Name:      "pending_queue_depth",
			Help:      "Entries in the local pending queue after the last cycle",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citation",
			Name:      "sessions_active",
			Help:      "Unexpired parking sessions after the last cycle",
		}),
	}
	reg.MustRegister(
		m.CitationsDiscovered,
		m.CrawlFailures,
		m.AlertsSent,
		m.AlertsSuppressed,
		m.StageDuration,
		m.PendingDepth,
		m.SessionsActive,
	)
	return m
}

// NewDefault registers on the default registry, for the CLI entry points.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
