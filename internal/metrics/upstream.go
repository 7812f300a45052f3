package metrics

import "github.com/prometheus/client_golang/prometheus"

// UpstreamMetrics holds Prometheus metrics for proxied tile servers.
type UpstreamMetrics struct {
	RequestsTotal *prometheus.CounterVec
	BreakerState  *prometheus.GaugeVec
}

// NewUpstreamMetrics creates and registers upstream metrics on the given registry.
func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	m := &UpstreamMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Total upstream tile requests by host and result (ok/not_found/error/rejected).",
		}, []string{"host", "result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state per upstream host (0=closed, 1=half-open, 2=open).",
		}, []string{"host"}),
	}

	reg.MustRegister(m.RequestsTotal, m.BreakerState)
	return m
}
