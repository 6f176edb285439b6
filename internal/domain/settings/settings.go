// Package settings holds the merchant-level rewards program configuration:
// the earn rate, the optional lot expiration window and the program switch.
// A single row backs the whole program; processors read it at the start of
// every event.
package settings

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Common errors
var (
	ErrInvalidEarnRate       = errors.New("earn rate must be zero or positive")
	ErrInvalidExpirationDays = errors.New("expiration days must be a positive whole number")
)

// Settings configures the rewards program. EarnRate is expressed as balance
// units granted per 100 minor units of order value, so
// earned = orderTotalCents * EarnRate / 100 in integer arithmetic.
type Settings struct {
	EarnRate       int64     `json:"earn_rate"`
	ExpirationDays *int      `json:"expiration_days,omitempty"` // nil disables expiration
	Enabled        bool      `json:"enabled"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks field constraints before persisting.
func (s *Settings) Validate() error {
	if s.EarnRate < 0 {
		return ErrInvalidEarnRate
	}
	if s.ExpirationDays != nil && *s.ExpirationDays <= 0 {
		return ErrInvalidExpirationDays
	}
	return nil
}

// LotExpiresAt computes a lot's expiration from its effective timestamp, or
// nil when expiration is disabled.
func (s *Settings) LotExpiresAt(effectiveAt time.Time) *time.Time {
	if s.ExpirationDays == nil {
		return nil
	}
	t := effectiveAt.Add(time.Duration(*s.ExpirationDays) * 24 * time.Hour)
	return &t
}

// Default returns the program configuration used before the merchant saves
// settings for the first time. The program stays disabled until it is
// explicitly configured, so no balance is granted at a rate the merchant
// never chose.
func Default() *Settings {
	return &Settings{
		EarnRate: 0,
		Enabled:  false,
	}
}

// Repository manages the single program settings row
type Repository interface {
	// Get returns the stored settings, or Default() when none were saved yet.
	Get(ctx context.Context) (*Settings, error)
	Upsert(ctx context.Context, s *Settings) error
	WithTx(tx pgx.Tx) Repository
}
