package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/jmartinez0/rewards/internal/domain/settings"
	"github.com/jmartinez0/rewards/internal/metrics"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// AdjustmentProcessor applies operator-initiated balance corrections.
type AdjustmentProcessor struct {
	logger    *slog.Logger
	db        persistence.TxRunner
	customers customer.Repository
	entries   ledger.Repository
	settings  settings.Repository
	allocator *Allocator
	mirror    Mirror
}

// NewAdjustmentProcessor creates an adjustment processor.
func NewAdjustmentProcessor(
	logger *slog.Logger,
	db persistence.TxRunner,
	customers customer.Repository,
	entries ledger.Repository,
	settingsRepo settings.Repository,
	allocator *Allocator,
	mirror Mirror,
) *AdjustmentProcessor {
	return &AdjustmentProcessor{
		logger:    logger,
		db:        db,
		customers: customers,
		entries:   entries,
		settings:  settingsRepo,
		allocator: allocator,
		mirror:    mirror,
	}
}

// Increase grants balance manually. The grant becomes a fresh lot subject to
// the expiration window in effect now, and counts toward lifetime balance.
func (p *AdjustmentProcessor) Increase(ctx context.Context, customerID uuid.UUID, amount int64, reason string) (*customer.Customer, error) {
	if err := validateAdjustment(amount, reason); err != nil {
		return nil, err
	}
	start := time.Now()

	cfg, err := p.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	var result *customer.Customer
	err = p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		customers := p.customers.WithTx(tx)
		entries := p.entries.WithTx(tx)

		c, err := customers.LockForUpdate(ctx, customerID)
		if err != nil {
			return err
		}

		lot, err := ledger.NewLot(c.ID, ledger.TypeAdjust, amount, ledger.ReasonManualGrant)
		if err != nil {
			return err
		}
		lot.ExpiresAt = cfg.LotExpiresAt(time.Now())
		lot.Notes = reason

		if err := entries.Create(ctx, lot); err != nil {
			return err
		}

		if err := customers.UpdateBalances(ctx, c.ID, amount, amount, c.Version); err != nil {
			return err
		}

		c.CurrentBalance += amount
		c.LifetimeBalance += amount
		result = c
		return nil
	})
	if err != nil {
		metrics.RecordLedgerTransaction("adjust_increase", "failed", time.Since(start))
		return nil, err
	}

	p.logger.Info("Balance increased manually",
		"customer_id", customerID.String(),
		"amount", amount,
		"new_balance", result.CurrentBalance,
	)
	p.mirror.Enqueue(result)
	metrics.RecordLedgerTransaction("adjust_increase", "success", time.Since(start))
	return result, nil
}

// Decrease revokes balance manually, draining lots FIFO. The removal must be
// funded in full: if eligible lots cannot cover the amount the transaction
// rolls back and the customer is unchanged. All depletion entries share one
// adjustment group id so history can present them as a single action.
func (p *AdjustmentProcessor) Decrease(ctx context.Context, customerID uuid.UUID, amount int64, reason string) (*customer.Customer, error) {
	if err := validateAdjustment(amount, reason); err != nil {
		return nil, err
	}
	start := time.Now()

	var result *customer.Customer
	err := p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		customers := p.customers.WithTx(tx)
		entries := p.entries.WithTx(tx)

		c, err := customers.LockForUpdate(ctx, customerID)
		if err != nil {
			return err
		}

		if amount > c.CurrentBalance {
			return customer.ErrInsufficientBalance
		}

		groupID := uuid.New()
		alloc, err := p.allocator.Deplete(ctx, entries, c.ID, amount, time.Now(), DepletionSpec{
			Type:            ledger.TypeAdjust,
			Reason:          ledger.ReasonManualRevoke,
			AdjustmentGroup: &groupID,
			Notes:           reason,
		})
		if err != nil {
			return err
		}
		if alloc.Depleted < amount {
			return customer.ErrInsufficientBalance
		}

		if err := customers.UpdateBalances(ctx, c.ID, -amount, 0, c.Version); err != nil {
			return err
		}

		c.CurrentBalance -= amount
		result = c
		return nil
	})
	if err != nil {
		metrics.RecordLedgerTransaction("adjust_decrease", "failed", time.Since(start))
		return nil, err
	}

	p.logger.Info("Balance decreased manually",
		"customer_id", customerID.String(),
		"amount", amount,
		"new_balance", result.CurrentBalance,
	)
	p.mirror.Enqueue(result)
	metrics.RecordLedgerTransaction("adjust_decrease", "success", time.Since(start))
	return result, nil
}

func validateAdjustment(amount int64, reason string) error {
	if amount <= 0 {
		return invalidField("amount", "amount must be a positive whole number")
	}
	if strings.TrimSpace(reason) == "" {
		return invalidField("reason", "reason is required")
	}
	return nil
}
