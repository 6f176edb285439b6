package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/jmartinez0/rewards/internal/domain/shared"
	"github.com/jmartinez0/rewards/internal/metrics"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// Authorization is the result of a pre-checkout spend request. Approved is
// the amount the storefront may apply as a discount; nothing is deducted
// until the order is actually paid.
type Authorization struct {
	Approved       int64 `json:"approved"`
	CurrentBalance int64 `json:"current_balance"`
}

// SpendProcessor authorizes redemptions at checkout and settles them when the
// paid order confirms the redemption was used.
type SpendProcessor struct {
	logger    *slog.Logger
	db        persistence.TxRunner
	customers customer.Repository
	entries   ledger.Repository
	allocator *Allocator
	mirror    Mirror
}

// NewSpendProcessor creates a spend processor.
func NewSpendProcessor(
	logger *slog.Logger,
	db persistence.TxRunner,
	customers customer.Repository,
	entries ledger.Repository,
	allocator *Allocator,
	mirror Mirror,
) *SpendProcessor {
	return &SpendProcessor{
		logger:    logger,
		db:        db,
		customers: customers,
		entries:   entries,
		allocator: allocator,
		mirror:    mirror,
	}
}

// Authorize validates a requested redemption against the customer's current
// balance and the cart total, and returns the amount that may be applied.
// It reads without locking: the paid-order settlement re-clamps against the
// balance at settlement time, so a stale authorization can never overdraw.
func (p *SpendProcessor) Authorize(ctx context.Context, externalRef string, requested, cartTotalCents int64) (*Authorization, error) {
	if externalRef == "" {
		return nil, invalidField("customer_ref", "customer reference is required")
	}
	if requested <= 0 {
		return nil, invalidField("amount", "amount must be a positive whole number")
	}

	c, err := p.customers.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, customer.ErrCustomerNotFound{}
	}

	if !c.CanSpend(requested) {
		return nil, customer.ErrInsufficientBalance
	}

	approved := requested
	if cartTotalCents > 0 && approved > cartTotalCents {
		approved = cartTotalCents
	}

	p.logger.Info("Spend authorized",
		"customer_id", c.ID.String(),
		"requested", requested,
		"approved", approved,
	)

	return &Authorization{
		Approved:       approved,
		CurrentBalance: c.CurrentBalance,
	}, nil
}

// ProcessSpend settles a redemption carried on a paid order. The amount is
// clamped to the balance actually available at settlement time, then drained
// from eligible lots FIFO; the projection moves by what was actually drained.
// The (customer, order) pair is the idempotency key. The boolean result
// reports whether depletions were recorded.
func (p *SpendProcessor) ProcessSpend(ctx context.Context, event *shared.OrderPaidEvent) (*customer.Customer, bool, error) {
	if event.SpendCents <= 0 {
		return nil, false, nil
	}
	start := time.Now()

	var (
		result  *customer.Customer
		settled bool
		spent   int64
	)
	err := p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		customers := p.customers.WithTx(tx)
		entries := p.entries.WithTx(tx)

		c, err := customers.GetByEmail(ctx, event.Email)
		if err != nil {
			return err
		}
		if c == nil {
			// A redemption implies a prior authorization, so this is drift,
			// not a guest order.
			p.logger.Warn("Redemption on order for unknown customer",
				"order_id", event.OrderID,
				"correlation_id", event.CorrelationID,
			)
			return nil
		}

		locked, err := customers.LockForUpdate(ctx, c.ID)
		if err != nil {
			return err
		}

		done, err := entries.HasSpendForOrder(ctx, locked.ID, event.OrderID)
		if err != nil {
			return err
		}
		if done {
			p.logger.Info("Order redemption already settled, skipping",
				"order_id", event.OrderID,
				"customer_id", locked.ID.String(),
				"correlation_id", event.CorrelationID,
			)
			result = locked
			return nil
		}

		toSpend := event.SpendCents
		if toSpend > locked.CurrentBalance {
			p.logger.Warn("Redemption exceeds current balance, clamping",
				"order_id", event.OrderID,
				"customer_id", locked.ID.String(),
				"requested", toSpend,
				"current_balance", locked.CurrentBalance,
			)
			toSpend = locked.CurrentBalance
		}
		if toSpend <= 0 {
			result = locked
			return nil
		}

		alloc, err := p.allocator.Deplete(ctx, entries, locked.ID, toSpend, event.ProcessedAt, DepletionSpec{
			Type:       ledger.TypeSpend,
			Reason:     ledger.ReasonOrderSpend,
			OrderID:    event.OrderID,
			RelatedRef: event.SpendCode,
			Notes:      fmt.Sprintf("Redeemed on order %s", event.OrderID),
		})
		if err != nil {
			return err
		}
		if alloc.Depleted == 0 {
			result = locked
			return nil
		}
		if alloc.Depleted < toSpend {
			// The projection exceeded the eligible lot value. Settle what the
			// lots can fund and let the projection converge back to them.
			p.logger.Warn("Eligible lots below projected balance",
				"customer_id", locked.ID.String(),
				"projected", toSpend,
				"depleted", alloc.Depleted,
			)
		}

		if err := customers.UpdateBalances(ctx, locked.ID, -alloc.Depleted, 0, locked.Version); err != nil {
			return err
		}

		locked.CurrentBalance -= alloc.Depleted
		result = locked
		settled = true
		spent = alloc.Depleted
		return nil
	})
	if err != nil {
		metrics.RecordLedgerTransaction("spend", "failed", time.Since(start))
		return nil, false, err
	}

	if settled {
		p.logger.Info("Redemption settled",
			"order_id", event.OrderID,
			"customer_id", result.ID.String(),
			"spent", spent,
			"new_balance", result.CurrentBalance,
			"correlation_id", event.CorrelationID,
		)
		p.mirror.Enqueue(result)
		metrics.RecordLedgerTransaction("spend", "success", time.Since(start))
	} else {
		metrics.RecordLedgerTransaction("spend", "duplicate", time.Since(start))
	}

	return result, settled, nil
}
