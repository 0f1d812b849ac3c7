package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LedgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediation",
			Name:      "ledger_operations_total",
			Help:      "Total ledger operations by type.",
		},
		[]string{"type"},
	)

	LedgerOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediation",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)

	// LedgerMovedBase sums base-currency amounts paid out of escrow by recipient.
	LedgerMovedBase = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediation",
			Name:      "ledger_moved_base_total",
			Help:      "Base-currency amount released from escrow by recipient.",
		},
		[]string{"recipient"},
	)
)

func init() {
	prometheus.MustRegister(LedgerOpsTotal, LedgerOpDuration, LedgerMovedBase)
}

func observeOp(opType string) func() {
	LedgerOpsTotal.WithLabelValues(opType).Inc()
	start := time.Now()
	return func() {
		LedgerOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
