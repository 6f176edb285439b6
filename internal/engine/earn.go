package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/jmartinez0/rewards/internal/domain/settings"
	"github.com/jmartinez0/rewards/internal/domain/shared"
	"github.com/jmartinez0/rewards/internal/metrics"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// Mirror receives committed customer states for best-effort propagation to
// the commerce platform. commerce.BalanceMirror implements it.
type Mirror interface {
	Enqueue(c *customer.Customer)
}

// EarnProcessor turns paid orders into balance lots.
type EarnProcessor struct {
	logger    *slog.Logger
	db        persistence.TxRunner
	customers customer.Repository
	entries   ledger.Repository
	settings  settings.Repository
	mirror    Mirror
}

// NewEarnProcessor creates an earn processor.
func NewEarnProcessor(
	logger *slog.Logger,
	db persistence.TxRunner,
	customers customer.Repository,
	entries ledger.Repository,
	settingsRepo settings.Repository,
	mirror Mirror,
) *EarnProcessor {
	return &EarnProcessor{
		logger:    logger,
		db:        db,
		customers: customers,
		entries:   entries,
		settings:  settingsRepo,
		mirror:    mirror,
	}
}

// ProcessOrderPaid grants balance for a paid order. The whole flow runs in
// one transaction keyed on the order id: a redelivered webhook finds the
// existing EARN lot and returns the current state untouched. The boolean
// result reports whether a new lot was created.
func (p *EarnProcessor) ProcessOrderPaid(ctx context.Context, event *shared.OrderPaidEvent) (*customer.Customer, bool, error) {
	start := time.Now()

	cfg, err := p.settings.Get(ctx)
	if err != nil {
		metrics.RecordLedgerTransaction("earn", "failed", time.Since(start))
		return nil, false, fmt.Errorf("failed to load program settings: %w", err)
	}
	if !cfg.Enabled {
		p.logger.Info("Rewards program disabled, skipping earn",
			"order_id", event.OrderID,
			"correlation_id", event.CorrelationID,
		)
		return nil, false, nil
	}

	earned := event.TotalCents * cfg.EarnRate / 100
	if earned <= 0 {
		p.logger.Info("Order yields no balance, skipping earn",
			"order_id", event.OrderID,
			"order_total_cents", event.TotalCents,
			"earn_rate", cfg.EarnRate,
		)
		return nil, false, nil
	}

	var (
		result  *customer.Customer
		created bool
	)
	err = p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		customers := p.customers.WithTx(tx)
		entries := p.entries.WithTx(tx)

		c, err := p.resolveCustomer(ctx, customers, event)
		if err != nil {
			return err
		}

		existing, err := entries.GetEarnByOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}
		if existing != nil {
			p.logger.Info("Order already earned, skipping",
				"order_id", event.OrderID,
				"entry_id", existing.ID,
				"correlation_id", event.CorrelationID,
			)
			result = c
			return nil
		}

		lot, err := ledger.NewLot(c.ID, ledger.TypeEarn, earned, ledger.ReasonOrderEarn)
		if err != nil {
			return err
		}
		lot.OrderID = event.OrderID
		lot.EarnRate = &cfg.EarnRate
		lot.ExpiresAt = cfg.LotExpiresAt(event.ProcessedAt)
		lot.Notes = fmt.Sprintf("Earned from order %s", event.OrderID)

		if err := entries.Create(ctx, lot); err != nil {
			return err
		}

		if err := customers.UpdateBalances(ctx, c.ID, earned, earned, c.Version); err != nil {
			return err
		}

		c.CurrentBalance += earned
		c.LifetimeBalance += earned
		result = c
		created = true
		return nil
	})
	if err != nil {
		metrics.RecordLedgerTransaction("earn", "failed", time.Since(start))
		return nil, false, err
	}

	if created {
		p.logger.Info("Balance earned",
			"order_id", event.OrderID,
			"customer_id", result.ID.String(),
			"earned", earned,
			"new_balance", result.CurrentBalance,
			"correlation_id", event.CorrelationID,
		)
		p.mirror.Enqueue(result)
		metrics.RecordLedgerTransaction("earn", "success", time.Since(start))
	} else {
		metrics.RecordLedgerTransaction("earn", "duplicate", time.Since(start))
	}

	return result, created, nil
}

// resolveCustomer finds the order's customer by email, creating one on first
// contact. Later orders backfill a missing platform reference and keep the
// display name current with what the platform sent. Existing customers come
// back row-locked.
func (p *EarnProcessor) resolveCustomer(ctx context.Context, customers customer.Repository, event *shared.OrderPaidEvent) (*customer.Customer, error) {
	c, err := customers.GetByEmail(ctx, event.Email)
	if err != nil {
		return nil, err
	}

	if c == nil {
		c, err = customer.NewCustomer(event.Email, event.ExternalRef, event.DisplayName)
		if err != nil {
			return nil, err
		}
		if err := customers.Create(ctx, c); err != nil {
			return nil, err
		}
		p.logger.Info("Created customer from order",
			"customer_id", c.ID.String(),
			"order_id", event.OrderID,
		)
		return c, nil
	}

	locked, err := customers.LockForUpdate(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	var newRef, newName string
	if locked.ExternalRef == "" && event.ExternalRef != "" {
		newRef = event.ExternalRef
	}
	if event.DisplayName != "" && event.DisplayName != locked.DisplayName {
		newName = event.DisplayName
	}
	if newRef != "" || newName != "" {
		if err := customers.UpdateIdentity(ctx, locked.ID, newRef, newName); err != nil {
			return nil, err
		}
		if newRef != "" {
			locked.ExternalRef = newRef
		}
		if newName != "" {
			locked.DisplayName = newName
		}
	}

	return locked, nil
}
