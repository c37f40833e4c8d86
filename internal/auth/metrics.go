package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for token refresh operations. Labels carry outcome only, never
// credential material.
var (
	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avaclient_token_refresh_total",
			Help: "Total number of token refresh operations",
		},
		[]string{"result"},
	)

	tokenRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "avaclient_token_refresh_duration_seconds",
			Help:    "Duration of token refresh operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)
)

func observeRefresh(result string, elapsed time.Duration) {
	tokenRefreshTotal.WithLabelValues(result).Inc()
	tokenRefreshDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}
