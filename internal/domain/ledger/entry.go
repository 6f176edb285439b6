package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EntryType classifies a ledger entry
type EntryType string

const (
	TypeEarn   EntryType = "EARN"   // balance granted from a paid order
	TypeSpend  EntryType = "SPEND"  // balance redeemed against an order
	TypeAdjust EntryType = "ADJUST" // manual or refund-driven correction
	TypeExpire EntryType = "EXPIRE" // expired lot remainder removed
)

// ReasonCode records why an entry exists. Refund idempotency and
// already-reversed accounting are driven by these codes together with
// RelatedRef instead of free-text note parsing.
type ReasonCode string

const (
	ReasonOrderEarn          ReasonCode = "ORDER_EARN"
	ReasonOrderSpend         ReasonCode = "ORDER_SPEND"
	ReasonManualGrant        ReasonCode = "MANUAL_GRANT"
	ReasonManualRevoke       ReasonCode = "MANUAL_REVOKE"
	ReasonRefundCredit       ReasonCode = "REFUND_CREDIT"
	ReasonRefundEarnReversal ReasonCode = "REFUND_EARN_REVERSAL"
	ReasonLotExpired         ReasonCode = "LOT_EXPIRED"
)

// Common errors
var (
	ErrInvalidAmount = errors.New("entry amount must be positive")
	ErrNotALot       = errors.New("entry is not a lot")
)

// Entry is one immutable ledger fact. Only RemainingAmount on lot-bearing
// entries ever changes after creation, and it only decreases.
type Entry struct {
	ID              int64      `json:"id"`
	CustomerID      uuid.UUID  `json:"customer_id"`
	Type            EntryType  `json:"type"`
	AmountDelta     int64      `json:"amount_delta"` // Stored in cents/minor units
	RemainingAmount *int64     `json:"remaining_amount,omitempty"`
	SourceLotID     *int64     `json:"source_lot_id,omitempty"`
	OrderID         string     `json:"order_id,omitempty"`
	AdjustmentGroup *uuid.UUID `json:"adjustment_group_id,omitempty"`
	ReasonCode      ReasonCode `json:"reason_code"`
	RelatedRef      string     `json:"related_external_id,omitempty"` // e.g. refund id
	EarnRate        *int64     `json:"earn_rate,omitempty"`           // rate in effect when the lot was created
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsLot reports whether the entry can fund later depletions.
func (e *Entry) IsLot() bool {
	return e.RemainingAmount != nil && e.AmountDelta > 0 &&
		(e.Type == TypeEarn || e.Type == TypeAdjust)
}

// Remaining returns the unconsumed value of a lot, zero otherwise.
func (e *Entry) Remaining() int64 {
	if e.RemainingAmount == nil {
		return 0
	}
	return *e.RemainingAmount
}

// Expired reports whether a lot's expiration has passed at the given instant.
// Entries without an expiration never expire.
func (e *Entry) Expired(asOf time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(asOf)
}

// NewLot builds an unsaved lot entry: a positive delta with its full value
// still remaining.
func NewLot(customerID uuid.UUID, entryType EntryType, amount int64, reason ReasonCode) (*Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	remaining := amount
	return &Entry{
		CustomerID:      customerID,
		Type:            entryType,
		AmountDelta:     amount,
		RemainingAmount: &remaining,
		ReasonCode:      reason,
		CreatedAt:       time.Now(),
	}, nil
}

// NewDepletion builds an unsaved depletion entry draining the given lot.
func NewDepletion(customerID uuid.UUID, entryType EntryType, amount int64, lotID int64, reason ReasonCode) (*Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return &Entry{
		CustomerID:  customerID,
		Type:        entryType,
		AmountDelta: -amount,
		SourceLotID: &lotID,
		ReasonCode:  reason,
		CreatedAt:   time.Now(),
	}, nil
}
