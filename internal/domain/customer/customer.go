package customer

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrEmptyEmail          = errors.New("customer email cannot be empty")
	ErrInsufficientBalance = errors.New("insufficient available balance")
)

// Customer is a rewards participant. Balances are cached projections of the
// customer's ledger, stored in minor units and updated in the same transaction
// as every ledger write. LifetimeBalance only ever grows.
type Customer struct {
	ID              uuid.UUID `json:"id"`
	ExternalRef     string    `json:"external_ref,omitempty"` // platform customer reference, empty for guests
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name,omitempty"`
	CurrentBalance  int64     `json:"current_balance"`
	LifetimeBalance int64     `json:"lifetime_balance"`
	Version         int       `json:"version"` // For optimistic locking
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewCustomer creates a customer record for a previously-unseen email.
func NewCustomer(email, externalRef, displayName string) (*Customer, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, ErrEmptyEmail
	}

	now := time.Now()
	return &Customer{
		ID:          uuid.New(),
		ExternalRef: externalRef,
		Email:       email,
		DisplayName: displayName,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanSpend reports whether the cached balance covers the requested amount.
func (c *Customer) CanSpend(amount int64) bool {
	return amount > 0 && c.CurrentBalance >= amount
}
