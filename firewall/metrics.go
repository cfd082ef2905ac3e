package firewall

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the scan-level metrics surface: counters and a latency
// histogram, registered by the embedding process rather than auto-published
// here, since whether (and where) to expose a /metrics endpoint is an
// operational decision outside the analysis pipeline's scope.
type Metrics struct {
	ScansStarted   prometheus.Counter
	ScansCompleted prometheus.Counter
	ScanErrors     prometheus.Counter
	ScanDuration   prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		ScansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txfirewall",
			Name:      "scans_started_total",
			Help:      "Total pre-signing scans started.",
		}),
		ScansCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txfirewall",
			Name:      "scans_completed_total",
			Help:      "Total pre-signing scans that returned a verdict.",
		}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "txfirewall",
			Name:      "scan_errors_total",
			Help:      "Scans that failed before producing any verdict.",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "txfirewall",
			Name:      "scan_duration_seconds",
			Help:      "Wall-clock duration of a complete scan.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register adds every metric to reg; callers choose whether that is the
// default global registry or a private one (e.g. in tests).
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.ScansStarted, m.ScansCompleted, m.ScanErrors, m.ScanDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
