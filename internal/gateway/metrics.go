package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// callsTotal counts remote store calls by operation and status.
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shareport_gateway_calls_total",
		Help: "Total remote store calls by operation and status",
	}, []string{"operation", "status"})

	// callDuration tracks remote call latency per operation.
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shareport_gateway_call_duration_seconds",
		Help:    "Remote store call duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
