package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages ledger entry persistence. Every method runs against the
// caller's querier: repositories never open transactions of their own, so the
// same methods serve the earn, spend, adjustment and refund flows inside one
// atomic transaction via WithTx.
type Repository interface {
	// Create appends an entry and fills in its generated ID and timestamp.
	Create(ctx context.Context, entry *Entry) error

	// DecrementLotRemaining subtracts amount from a lot's remaining value.
	// It fails with ErrLotOverdrawn when the lot no longer holds that much,
	// which keeps remaining_amount non-negative under concurrent drains.
	DecrementLotRemaining(ctx context.Context, lotID int64, amount int64) error

	// GetEarnByOrder returns the order's EARN lot, or nil, nil when the order
	// has not been processed. At most one such entry exists per order.
	GetEarnByOrder(ctx context.Context, orderID string) (*Entry, error)

	// HasSpendForOrder reports whether a SPEND set was already recorded for
	// the (customer, order) idempotency key.
	HasSpendForOrder(ctx context.Context, customerID uuid.UUID, orderID string) (bool, error)

	// HasEntryForRefund reports whether the refund was already reconciled,
	// identified by its own external id.
	HasEntryForRefund(ctx context.Context, orderID, refundID string) (bool, error)

	// ListEligibleLots returns lots with remaining value that have not
	// expired at asOf, ordered by (created_at ASC, id ASC) so FIFO
	// consumption is deterministic even for equal timestamps.
	ListEligibleLots(ctx context.Context, customerID uuid.UUID, asOf time.Time) ([]*Entry, error)

	// ListExpiredLots returns lots that still hold value but whose
	// expiration has passed at asOf, in the same deterministic order.
	ListExpiredLots(ctx context.Context, customerID uuid.UUID, asOf time.Time) ([]*Entry, error)

	// SumSpendForOrder returns the absolute value spent against the order.
	SumSpendForOrder(ctx context.Context, orderID string) (int64, error)

	// SumRefundCreditsForOrder returns the total already returned to the
	// customer by prior refunds of the order.
	SumRefundCreditsForOrder(ctx context.Context, orderID string) (int64, error)

	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Entry, error)
	CountByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrLotOverdrawn indicates a decrement larger than the lot's remaining value
type ErrLotOverdrawn struct {
	LotID  int64
	Amount int64
}

func (e ErrLotOverdrawn) Error() string {
	return "lot " + strconv.FormatInt(e.LotID, 10) + " cannot be drained by " + strconv.FormatInt(e.Amount, 10)
}

// Is matches any ErrLotOverdrawn when the target carries a zero lot id.
func (e ErrLotOverdrawn) Is(target error) bool {
	t, ok := target.(ErrLotOverdrawn)
	if !ok {
		return false
	}
	if t.LotID == 0 {
		return true
	}
	return e.LotID == t.LotID
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	EntryID int64
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + strconv.FormatInt(e.EntryID, 10)
}
