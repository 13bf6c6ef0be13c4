package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_persist_write_retries_total",
		Help: "Total failed document write attempts that were retried",
	})

	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_persist_write_failures_total",
		Help: "Total document writes that exhausted all retry attempts",
	})

	backupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_persist_backup_failures_total",
		Help: "Total pre-write backups that failed",
	})

	verifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shareport_persist_verify_failures_total",
		Help: "Total post-write verification read-backs that failed or mismatched",
	})
)
