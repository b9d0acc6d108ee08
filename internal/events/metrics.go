package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Ledger entries appended, by event type.",
	}, []string{"event_type"})

	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_emit_skipped_total",
		Help: "Emits skipped by idempotency policy, by reason.",
	}, []string{"reason"})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_append_conflicts_total",
		Help: "Appends that failed with a retryable storage conflict.",
	})
)
