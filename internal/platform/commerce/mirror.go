package commerce

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/metrics"
	"github.com/panjf2000/ants/v2"
)

// BalanceMirror pushes committed balances to the commerce platform off the
// request path. Mirroring is deliberately outside the ledger transaction:
// failures are logged and counted, never retried into the ledger's outcome.
type BalanceMirror struct {
	client  Client
	pool    *ants.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewBalanceMirror creates a mirror dispatcher backed by a worker pool of the
// given size.
func NewBalanceMirror(logger *slog.Logger, client Client, poolSize int, timeout time.Duration) (*BalanceMirror, error) {
	pool, err := ants.NewPool(poolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	return &BalanceMirror{
		client:  client,
		pool:    pool,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Enqueue submits one mirror write for an already-committed customer state.
// It never blocks the caller and never returns an error: a full pool or a
// failed platform write only degrades the mirror, not the ledger.
func (m *BalanceMirror) Enqueue(c *customer.Customer) {
	if c == nil || c.ExternalRef == "" {
		// Guest customers have no platform record to mirror onto.
		return
	}

	ref := c.ExternalRef
	current := c.CurrentBalance
	lifetime := c.LifetimeBalance

	err := m.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		if err := m.client.SetCustomerBalanceFields(ctx, ref, current, lifetime); err != nil {
			metrics.MirrorFailures.Inc()
			m.logger.Error("Failed to mirror customer balances", "external_ref", ref, "error", err)
		}
	})
	if err != nil {
		metrics.MirrorFailures.Inc()
		m.logger.Error("Failed to enqueue balance mirror", "external_ref", ref, "error", err)
	}
}

// Shutdown releases the worker pool.
func (m *BalanceMirror) Shutdown() {
	m.logger.Info("Shutting down balance mirror", "running_workers", m.pool.Running())
	m.pool.Release()
}
