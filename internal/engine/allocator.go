// Package engine implements the ledger processors: FIFO lot allocation,
// earning, spending, manual adjustment, refund reconciliation, expiration and
// history reads. Every processor runs its mutations inside one database
// transaction and checks idempotency against the ledger itself, so redelivered
// events collapse into no-ops.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
)

// DepletionSpec describes the depletion entries an allocation produces.
type DepletionSpec struct {
	Type            ledger.EntryType
	Reason          ledger.ReasonCode
	OrderID         string
	AdjustmentGroup *uuid.UUID
	RelatedRef      string
	Notes           string
}

// Allocation is the result of a depletion request.
type Allocation struct {
	// Depleted is how much was actually consumed, at most the requested
	// amount. Callers that require the full amount must check this and roll
	// the transaction back on a shortfall.
	Depleted int64
	Entries  []*ledger.Entry
}

// Allocator consumes balance from eligible lots in FIFO order. It is
// stateless: the caller hands it a transaction-bound ledger repository, so
// the same code path serves spend, manual decrease and refund reversal.
type Allocator struct {
	logger *slog.Logger
}

// NewAllocator creates a lot allocator.
func NewAllocator(logger *slog.Logger) *Allocator {
	return &Allocator{logger: logger}
}

// Deplete consumes up to amount across the customer's eligible lots, oldest
// first. Eligibility and order come from the store: remaining value, not
// expired at asOf, sorted by (created_at, id). For each touched lot it
// decrements the remainder and appends one depletion entry pointing back at
// the lot. It stops when the amount is exhausted or lots run out; it never
// decides whether a partial result is acceptable - that is the caller's
// policy.
func (a *Allocator) Deplete(ctx context.Context, entries ledger.Repository, customerID uuid.UUID, amount int64, asOf time.Time, spec DepletionSpec) (*Allocation, error) {
	alloc := &Allocation{}
	if amount <= 0 {
		return alloc, nil
	}

	lots, err := entries.ListEligibleLots(ctx, customerID, asOf)
	if err != nil {
		return nil, err
	}

	remaining := amount
	for _, lot := range lots {
		if remaining == 0 {
			break
		}

		take := lot.Remaining()
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}

		entry, err := a.drainLot(ctx, entries, lot, take, spec)
		if err != nil {
			return nil, err
		}

		alloc.Depleted += take
		alloc.Entries = append(alloc.Entries, entry)
		remaining -= take
	}

	if remaining > 0 {
		a.logger.Debug("Allocation stopped short of request",
			"customer_id", customerID.String(),
			"requested", amount,
			"depleted", alloc.Depleted,
		)
	}

	return alloc, nil
}

// DepleteFromLot consumes up to amount from one specific lot. The refund flow
// uses this to reverse an order's earn against that order's own lot only.
func (a *Allocator) DepleteFromLot(ctx context.Context, entries ledger.Repository, lot *ledger.Entry, amount int64, spec DepletionSpec) (*Allocation, error) {
	alloc := &Allocation{}
	if amount <= 0 {
		return alloc, nil
	}
	if !lot.IsLot() {
		return nil, ledger.ErrNotALot
	}

	take := lot.Remaining()
	if take > amount {
		take = amount
	}
	if take <= 0 {
		return alloc, nil
	}

	entry, err := a.drainLot(ctx, entries, lot, take, spec)
	if err != nil {
		return nil, err
	}

	alloc.Depleted = take
	alloc.Entries = append(alloc.Entries, entry)
	return alloc, nil
}

func (a *Allocator) drainLot(ctx context.Context, entries ledger.Repository, lot *ledger.Entry, take int64, spec DepletionSpec) (*ledger.Entry, error) {
	// The guarded decrement fails on concurrent over-drain, aborting the
	// whole transaction rather than letting a lot go negative.
	if err := entries.DecrementLotRemaining(ctx, lot.ID, take); err != nil {
		return nil, err
	}

	entry, err := ledger.NewDepletion(lot.CustomerID, spec.Type, take, lot.ID, spec.Reason)
	if err != nil {
		return nil, err
	}
	entry.OrderID = spec.OrderID
	entry.AdjustmentGroup = spec.AdjustmentGroup
	entry.RelatedRef = spec.RelatedRef
	entry.Notes = spec.Notes

	if err := entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}
