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
	"github.com/jmartinez0/rewards/internal/platform/commerce"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// OrderSource fetches platform order state during refund reconciliation.
// commerce.Client satisfies it; tests substitute a stub.
type OrderSource interface {
	GetOrderSummary(ctx context.Context, orderID string) (*commerce.OrderSummary, error)
}

// RefundProcessor reconciles refunds against the order's ledger history. A
// refund can move the balance both ways at once: balance spent on the order
// comes back proportionally, balance earned from the order is taken away
// proportionally.
type RefundProcessor struct {
	logger    *slog.Logger
	db        persistence.TxRunner
	customers customer.Repository
	entries   ledger.Repository
	settings  settings.Repository
	allocator *Allocator
	orders    OrderSource
	mirror    Mirror
}

// NewRefundProcessor creates a refund processor.
func NewRefundProcessor(
	logger *slog.Logger,
	db persistence.TxRunner,
	customers customer.Repository,
	entries ledger.Repository,
	settingsRepo settings.Repository,
	allocator *Allocator,
	orders OrderSource,
	mirror Mirror,
) *RefundProcessor {
	return &RefundProcessor{
		logger:    logger,
		db:        db,
		customers: customers,
		entries:   entries,
		settings:  settingsRepo,
		allocator: allocator,
		orders:    orders,
		mirror:    mirror,
	}
}

// ProcessRefundCreated applies one refund. The refund's own id is the
// idempotency key: once any reconciliation entry carries it, redeliveries
// are no-ops. Errors from the platform lookup propagate so the webhook is
// redelivered; a refund for an order the ledger never saw is skipped. The
// boolean result reports whether entries were recorded.
func (p *RefundProcessor) ProcessRefundCreated(ctx context.Context, event *shared.RefundCreatedEvent) (*customer.Customer, bool, error) {
	start := time.Now()

	cfg, err := p.settings.Get(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load program settings: %w", err)
	}
	if !cfg.Enabled {
		p.logger.Info("Rewards program disabled, skipping refund",
			"refund_id", event.RefundID,
			"correlation_id", event.CorrelationID,
		)
		return nil, false, nil
	}

	summary, err := p.orders.GetOrderSummary(ctx, event.OrderID)
	if err != nil {
		metrics.RecordLedgerTransaction("refund", "failed", time.Since(start))
		return nil, false, fmt.Errorf("failed to fetch order %s: %w", event.OrderID, err)
	}

	// A refund can never count for more than the order itself.
	refunded := event.RefundedCents
	if summary.TotalCents > 0 && refunded > summary.TotalCents {
		p.logger.Warn("Refund exceeds order total, clamping",
			"refund_id", event.RefundID,
			"order_id", event.OrderID,
			"refunded_cents", refunded,
			"order_total_cents", summary.TotalCents,
		)
		refunded = summary.TotalCents
	}
	if refunded <= 0 {
		p.logger.Info("Refund carries no value, skipping",
			"refund_id", event.RefundID,
			"order_id", event.OrderID,
		)
		return nil, false, nil
	}

	var (
		result  *customer.Customer
		applied bool
	)
	err = p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		customers := p.customers.WithTx(tx)
		entries := p.entries.WithTx(tx)

		c, err := p.resolveCustomer(ctx, customers, summary)
		if err != nil {
			return err
		}
		if c == nil {
			p.logger.Info("Refund for order without a ledger customer, skipping",
				"refund_id", event.RefundID,
				"order_id", event.OrderID,
			)
			return nil
		}

		done, err := entries.HasEntryForRefund(ctx, event.OrderID, event.RefundID)
		if err != nil {
			return err
		}
		if done {
			p.logger.Info("Refund already reconciled, skipping",
				"refund_id", event.RefundID,
				"order_id", event.OrderID,
				"correlation_id", event.CorrelationID,
			)
			result = c
			return nil
		}

		credit, err := p.spendReversal(ctx, entries, event, summary.TotalCents, refunded)
		if err != nil {
			return err
		}

		earnLot, err := entries.GetEarnByOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}
		removal, err := p.earnReversal(ctx, entries, event, cfg, earnLot, refunded)
		if err != nil {
			return err
		}

		if credit == 0 && removal == 0 {
			result = c
			return nil
		}

		if credit > 0 {
			lot, err := ledger.NewLot(c.ID, ledger.TypeAdjust, credit, ledger.ReasonRefundCredit)
			if err != nil {
				return err
			}
			lot.OrderID = event.OrderID
			lot.RelatedRef = event.RefundID
			lot.ExpiresAt = cfg.LotExpiresAt(time.Now())
			lot.Notes = fmt.Sprintf("Balance spent on order %s returned after refund", event.OrderID)
			if err := entries.Create(ctx, lot); err != nil {
				return err
			}
		}

		// The customer may have spent the earned balance already, so the
		// removal can push the projection below zero. Clamp at zero and
		// surface the discrepancy instead of storing a negative balance.
		currentDelta := credit - removal
		if c.CurrentBalance+currentDelta < 0 {
			p.logger.Error("Refund reversal exceeds current balance, clamping at zero",
				"refund_id", event.RefundID,
				"customer_id", c.ID.String(),
				"current_balance", c.CurrentBalance,
				"credit", credit,
				"removal", removal,
			)
			metrics.BalanceClamps.Inc()
			currentDelta = -c.CurrentBalance
		}

		if err := customers.UpdateBalances(ctx, c.ID, currentDelta, credit, c.Version); err != nil {
			return err
		}

		c.CurrentBalance += currentDelta
		c.LifetimeBalance += credit
		result = c
		applied = true

		p.logger.Info("Refund reconciled",
			"refund_id", event.RefundID,
			"order_id", event.OrderID,
			"customer_id", c.ID.String(),
			"credit", credit,
			"removal", removal,
			"new_balance", c.CurrentBalance,
			"correlation_id", event.CorrelationID,
		)
		return nil
	})
	if err != nil {
		metrics.RecordLedgerTransaction("refund", "failed", time.Since(start))
		return nil, false, err
	}

	if applied {
		p.mirror.Enqueue(result)
		metrics.RecordLedgerTransaction("refund", "success", time.Since(start))
	} else {
		metrics.RecordLedgerTransaction("refund", "duplicate", time.Since(start))
	}

	return result, applied, nil
}

// resolveCustomer finds the refunded order's customer by platform reference
// first, then by email, row-locking the match. Both missing means the order
// came from a guest the ledger never tracked.
func (p *RefundProcessor) resolveCustomer(ctx context.Context, customers customer.Repository, summary *commerce.OrderSummary) (*customer.Customer, error) {
	var c *customer.Customer
	var err error

	if summary.CustomerRef != "" {
		c, err = customers.GetByExternalRef(ctx, summary.CustomerRef)
		if err != nil {
			return nil, err
		}
	}
	if c == nil && summary.Email != "" {
		c, err = customers.GetByEmail(ctx, summary.Email)
		if err != nil {
			return nil, err
		}
	}
	if c == nil {
		return nil, nil
	}

	return customers.LockForUpdate(ctx, c.ID)
}

// spendReversal computes the balance to return for redemptions spent on the
// refunded order: the spent amount prorated by this refund's share of the
// order, capped so all refunds of the order combined never return more than
// was spent.
func (p *RefundProcessor) spendReversal(ctx context.Context, entries ledger.Repository, event *shared.RefundCreatedEvent, orderTotal, refunded int64) (int64, error) {
	spent, err := entries.SumSpendForOrder(ctx, event.OrderID)
	if err != nil {
		return 0, err
	}
	if spent == 0 || orderTotal <= 0 {
		return 0, nil
	}

	credit := spent * refunded / orderTotal

	already, err := entries.SumRefundCreditsForOrder(ctx, event.OrderID)
	if err != nil {
		return 0, err
	}
	if remaining := spent - already; credit > remaining {
		credit = remaining
	}
	if credit < 0 {
		credit = 0
	}
	return credit, nil
}

// earnReversal removes balance earned from the refunded order: the refund
// valued at the rate stored on the order's lot, capped at what the lot still
// holds. Draining only that lot makes repeat refunds self-limiting without
// any extra bookkeeping.
func (p *RefundProcessor) earnReversal(ctx context.Context, entries ledger.Repository, event *shared.RefundCreatedEvent, cfg *settings.Settings, earnLot *ledger.Entry, refunded int64) (int64, error) {
	if earnLot == nil {
		return 0, nil
	}

	rate := cfg.EarnRate
	if earnLot.EarnRate != nil && *earnLot.EarnRate > 0 {
		rate = *earnLot.EarnRate
	}

	toRemove := refunded * rate / 100
	if toRemove <= 0 {
		return 0, nil
	}

	alloc, err := p.allocator.DepleteFromLot(ctx, entries, earnLot, toRemove, DepletionSpec{
		Type:       ledger.TypeAdjust,
		Reason:     ledger.ReasonRefundEarnReversal,
		OrderID:    event.OrderID,
		RelatedRef: event.RefundID,
		Notes:      fmt.Sprintf("Balance earned from order %s removed after refund", event.OrderID),
	})
	if err != nil {
		return 0, err
	}
	return alloc.Depleted, nil
}
