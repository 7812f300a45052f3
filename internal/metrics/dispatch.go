package metrics

import "github.com/prometheus/client_golang/prometheus"

// Dispatch outcome labels.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// DispatchMetrics holds Prometheus metrics for the tile dispatcher.
type DispatchMetrics struct {
	Queued         prometheus.Gauge
	Running        prometheus.Gauge
	Outcomes       *prometheus.CounterVec
	QueueWait      prometheus.Histogram
	RenderDuration *prometheus.HistogramVec
}

// NewDispatchMetrics creates and registers dispatcher metrics on the given registry.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		Queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queued",
			Help:      "Number of tile renders waiting for a worker.",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "running",
			Help:      "Number of tile renders currently executing.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Total number of dispatched renders by outcome (succeeded/failed/cancelled/rejected).",
		}, []string{"outcome"}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_wait_seconds",
			Help:      "Time a render waited in the queue before a worker picked it up.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "render_duration_seconds",
			Help:      "Duration of tile renders in seconds, by provider.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
	}

	reg.MustRegister(m.Queued, m.Running, m.Outcomes, m.QueueWait, m.RenderDuration)
	return m
}
