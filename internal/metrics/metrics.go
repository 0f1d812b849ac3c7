// Package metrics holds the Prometheus collectors of the mediation service and the
// /metrics handler shared by the api and worker binaries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts mediation operations by name and result.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediation",
			Name:      "operations_total",
			Help:      "Mediation operations by name and result.",
		},
		[]string{"op", "result"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediation",
			Name:      "operation_duration_seconds",
			Help:      "Mediation operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"op"},
	)

	// TransitionsTotal counts committed status changes.
	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediation",
			Name:      "transitions_total",
			Help:      "Committed status transitions.",
		},
		[]string{"from", "to"},
	)

	ConflictRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediation",
			Name:      "conflict_retries_total",
			Help:      "Retries caused by concurrent writers.",
		},
		[]string{"op"},
	)

	SweepProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediation",
			Name:      "sweep_processed_total",
			Help:      "Records handled by the scheduled sweep, by job and result.",
		},
		[]string{"job", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		TransitionsTotal,
		ConflictRetries,
		SweepProcessed,
	)
}

// ObserveOp starts timing op; call the returned func with the final error.
func ObserveOp(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		OperationsTotal.WithLabelValues(op, result).Inc()
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
