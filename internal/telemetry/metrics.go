package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	CallsTotal     *prometheus.CounterVec
	CallDuration   *prometheus.HistogramVec
	TokenRefreshes *prometheus.CounterVec
}

// NewMetrics creates Prometheus metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huolala_api_calls_total",
				Help: "Total number of Huolala API calls by api method and status",
			},
			[]string{"method", "status"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "huolala_api_call_duration_seconds",
				Help:    "Huolala API call duration in seconds by api method",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "huolala_token_refreshes_total",
				Help: "Total access token refreshes by status",
			},
			[]string{"status"},
		),
	}
}

// RecordCall records an API call metric.
func (m *Metrics) RecordCall(method, status string, duration time.Duration) {
	m.CallsTotal.WithLabelValues(method, status).Inc()
	m.CallDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTokenRefresh records a token refresh metric.
func (m *Metrics) RecordTokenRefresh(status string) {
	m.TokenRefreshes.WithLabelValues(status).Inc()
}
