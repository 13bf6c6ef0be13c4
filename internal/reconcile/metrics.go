package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_reconcile_runs_total",
		Help: "Total reconciliation passes started",
	})

	failuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_reconcile_failures_total",
		Help: "Total reconciliation passes aborted by a failed remote listing",
	})

	coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_reconcile_coalesced_total",
		Help: "Total reconciliation requests that joined an in-flight pass",
	})

	discoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_reconcile_discovered_total",
		Help: "Total catalog entries created from remote scan discoveries",
	})

	retiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_reconcile_retired_total",
		Help: "Total catalog entries soft-deleted after vanishing remotely",
	})

	duration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shareport_reconcile_duration_seconds",
		Help:    "Reconciliation pass duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)
