// Package metrics holds the Prometheus collectors of the service.
// Collectors are registered on the default registry through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts requests by method, route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kglti_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kglti_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		},
		[]string{"method", "route"},
	)

	// ProjectionElements records how many nodes and edges each projection returns.
	ProjectionElements = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kglti_projection_elements",
			Help:    "Number of elements returned by a projection",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation", "kind"},
	)

	// StoreErrors counts failed operations by error kind.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kglti_store_errors_total",
			Help: "Total number of failed graph operations",
		},
		[]string{"operation", "kind"},
	)
)
