// Package metrics exposes the coordinator's checkpoint/restore counters
// through a private prometheus registry (SPEC_FULL §1 "Observability").
// Nothing here is scraped over HTTP — the diagnostic socket is a control
// path, not a metrics endpoint — but keeping the registry private rather
// than using prometheus' default global one matches moby-moby's
// daemon/stats collector pattern of constructing its own registerer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector bundles the coordinator's instrumentation.
type Collector struct {
	Registry *prometheus.Registry

	Attempts       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	ClaimedFDGauge prometheus.Gauge
}

// New constructs and registers the coordinator's metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmcr",
			Name:      "attempts_total",
			Help:      "Checkpoint/restore attempts by phase and result code.",
		}, []string{"phase", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vmcr",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of checkpoint/restore phases.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		ClaimedFDGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vmcr",
			Name:      "claimed_fds",
			Help:      "Number of file descriptors claimed during the most recent checkpoint attempt.",
		}),
	}

	reg.MustRegister(c.Attempts, c.Duration, c.ClaimedFDGauge)
	return c
}

// ObserveAttempt records one checkpoint or restore attempt outcome.
func (c *Collector) ObserveAttempt(phase, result string) {
	c.Attempts.WithLabelValues(phase, result).Inc()
}
