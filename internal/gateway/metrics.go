package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/navyguy3117/ArdenV10-Dashboard/internal/budget"
)

// Metrics holds the Prometheus instruments exported at /metrics.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	spend    *prometheus.GaugeVec
}

// NewMetrics registers the metric set on the default registry. Call at
// most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arden",
			Subsystem: "router",
			Name:      "requests_total",
			Help:      "Completed requests by intent, winning provider, and outcome.",
		}, []string{"intent", "provider", "outcome"}),

		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arden",
			Subsystem: "router",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),

		spend: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arden",
			Subsystem: "budget",
			Name:      "spend_usd",
			Help:      "Estimated spend per provider for the current day and month.",
		}, []string{"provider", "window"}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(intent, provider, outcome string, elapsed time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	if provider == "" {
		provider = "none"
	}
	m.requests.WithLabelValues(intent, provider, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// UpdateSpend refreshes the spend gauges from a ledger snapshot.
func (m *Metrics) UpdateSpend(spends []budget.ProviderSpend) {
	for _, s := range spends {
		m.spend.WithLabelValues(s.Provider, "day").Set(s.DailyUSD)
		m.spend.WithLabelValues(s.Provider, "month").Set(s.MonthlyUSD)
	}
}
