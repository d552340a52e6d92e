package assist

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeCacheHit = "cache_hit"
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeDenied   = "denied"
	outcomeStale    = "stale"
	outcomeError    = "error"
)

// Metrics counts agreement fetch outcomes.
type Metrics struct {
	fetches  *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics builds the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_helper_agreement_fetch_total",
			Help: "Agreement data lookups by outcome",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transfer_helper_agreement_fetch_retries_total",
			Help: "Agreement data fetch retries",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transfer_helper_agreement_fetch_duration_seconds",
			Help:    "Agreement data fetch latency including retries",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.retries, m.duration)
	}
	return m
}

func (m *Metrics) observe(outcome string) {
	m.fetches.WithLabelValues(outcome).Inc()
}
