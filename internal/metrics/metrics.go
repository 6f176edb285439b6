package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEvents counts processed webhook deliveries by topic and outcome
	// (processed, duplicate, skipped, failed).
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_webhook_events_total",
			Help: "Webhook deliveries handled, by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	// LedgerTransactionDuration tracks the latency of ledger transactions
	LedgerTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "rewards_ledger_transaction_duration_seconds",
			Help: "Duration of ledger transactions in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "status"}, // success or failure
	)

	// MirrorFailures counts best-effort platform mirror writes that failed.
	// Mirror failures never fail the ledger transaction, so this counter is
	// the only place they become visible besides the logs.
	MirrorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_mirror_failures_total",
			Help: "Balance mirror writes to the commerce platform that failed",
		},
	)

	// BalanceClamps counts refund decrements clamped at zero because the
	// ledger and the cached projection had drifted.
	BalanceClamps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rewards_balance_clamps_total",
			Help: "Balance decrements clamped to keep a customer balance non-negative",
		},
	)
)

// RecordLedgerTransaction records the duration of one ledger transaction
func RecordLedgerTransaction(operation, status string, elapsed time.Duration) {
	LedgerTransactionDuration.WithLabelValues(operation, status).Observe(elapsed.Seconds())
}
