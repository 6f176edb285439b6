package shared

import "time"

// OrderPaidEvent is the normalized form of an "order paid" webhook delivery.
// The API layer is responsible for flattening the platform payload into this
// shape; the engine never sees raw webhook JSON.
type OrderPaidEvent struct {
	OrderID       string
	Email         string
	ExternalRef   string // platform customer reference, may be empty for guest orders
	DisplayName   string
	TotalCents    int64
	SpendCents    int64  // redemption carried on the order, 0 when none
	SpendCode     string // discount code that carried the redemption
	ProcessedAt   time.Time
	CorrelationID string
}

// RefundCreatedEvent is the normalized form of a "refund created" webhook
// delivery. RefundedCents is derived from the payload with a fixed priority:
// refund transactions first, then line-item subtotals, then shipping plus
// order adjustments.
type RefundCreatedEvent struct {
	RefundID      string
	OrderID       string
	RefundedCents int64
	CorrelationID string
}
