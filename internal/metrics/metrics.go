package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verification and recurrence counters exposed on /metrics.
var (
	VerificationsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patrol_verifications_committed_total",
		Help: "Verification records committed, by status.",
	}, []string{"status"})

	VerificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patrol_verification_failures_total",
		Help: "Rejected verification attempts, by reason.",
	}, []string{"reason"})

	RecurrenceRolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patrol_recurrence_rolls_total",
		Help: "Recurring templates advanced by the maintenance pass.",
	})

	OccurrencesMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patrol_occurrences_materialized_total",
		Help: "Occurrence records created by pre-materialization.",
	})

	ExpandJobs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patrol_expand_jobs_total",
		Help: "Expand jobs consumed by the worker.",
	})
)
