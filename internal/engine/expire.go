package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/jmartinez0/rewards/internal/metrics"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// ExpireProcessor sweeps a customer's lapsed lots. Expired lots already stop
// funding depletions the moment their timestamp passes; the sweep records the
// loss as EXPIRE entries and brings the cached balance back in line with the
// eligible lot value.
type ExpireProcessor struct {
	logger    *slog.Logger
	db        persistence.TxRunner
	customers customer.Repository
	entries   ledger.Repository
	mirror    Mirror
}

// NewExpireProcessor creates an expiration processor.
func NewExpireProcessor(
	logger *slog.Logger,
	db persistence.TxRunner,
	customers customer.Repository,
	entries ledger.Repository,
	mirror Mirror,
) *ExpireProcessor {
	return &ExpireProcessor{
		logger:    logger,
		db:        db,
		customers: customers,
		entries:   entries,
		mirror:    mirror,
	}
}

// ExpireResult reports one sweep's outcome.
type ExpireResult struct {
	Customer *customer.Customer
	Expired  int64
	Lots     int
}

// Sweep zeroes every expired lot the customer still holds value in, writing
// one EXPIRE entry per lot. Sweeping twice is a natural no-op: a swept lot
// has no remaining value left to expire.
func (p *ExpireProcessor) Sweep(ctx context.Context, customerID uuid.UUID) (*ExpireResult, error) {
	start := time.Now()

	result := &ExpireResult{}
	err := p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		customers := p.customers.WithTx(tx)
		entries := p.entries.WithTx(tx)

		c, err := customers.LockForUpdate(ctx, customerID)
		if err != nil {
			return err
		}

		lots, err := entries.ListExpiredLots(ctx, c.ID, time.Now())
		if err != nil {
			return err
		}

		var total int64
		for _, lot := range lots {
			remaining := lot.Remaining()
			if remaining <= 0 {
				continue
			}

			if err := entries.DecrementLotRemaining(ctx, lot.ID, remaining); err != nil {
				return err
			}

			entry, err := ledger.NewDepletion(c.ID, ledger.TypeExpire, remaining, lot.ID, ledger.ReasonLotExpired)
			if err != nil {
				return err
			}
			entry.OrderID = lot.OrderID
			entry.Notes = "Balance expired"
			if err := entries.Create(ctx, entry); err != nil {
				return err
			}

			total += remaining
			result.Lots++
		}

		if total == 0 {
			result.Customer = c
			return nil
		}

		// The projection can sit below the expired lot value after clamped
		// refunds; never let the sweep push it negative.
		delta := -total
		if c.CurrentBalance+delta < 0 {
			p.logger.Error("Expired value exceeds current balance, clamping at zero",
				"customer_id", c.ID.String(),
				"current_balance", c.CurrentBalance,
				"expired", total,
			)
			metrics.BalanceClamps.Inc()
			delta = -c.CurrentBalance
		}

		if err := customers.UpdateBalances(ctx, c.ID, delta, 0, c.Version); err != nil {
			return err
		}

		c.CurrentBalance += delta
		result.Customer = c
		result.Expired = total
		return nil
	})
	if err != nil {
		metrics.RecordLedgerTransaction("expire", "failed", time.Since(start))
		return nil, err
	}

	if result.Expired > 0 {
		p.logger.Info("Expired lots swept",
			"customer_id", customerID.String(),
			"lots", result.Lots,
			"expired", result.Expired,
			"new_balance", result.Customer.CurrentBalance,
		)
		p.mirror.Enqueue(result.Customer)
		metrics.RecordLedgerTransaction("expire", "success", time.Since(start))
	}

	return result, nil
}
