// Package shared contains domain types used by both the API layer and the
// ledger engine: money parsing and the normalized external events.
package shared

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidMoney indicates a money string that could not be parsed
var ErrInvalidMoney = errors.New("invalid money amount")

// ParseMoneyToCents converts a decimal money string ("54.99", "-3.5") into
// int64 minor units. Fraction digits beyond two are truncated, never rounded:
// earn, spend and refund math must agree on the same cents value for the same
// input. Empty or whitespace-only input parses as zero.
func ParseMoneyToCents(amount string) (int64, error) {
	normalized := strings.TrimSpace(amount)
	if normalized == "" {
		return 0, nil
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMoney, amount)
	}

	// Shift(2) moves the decimal point past the cents digit; Truncate(0)
	// drops sub-cent precision toward zero for both signs.
	return d.Shift(2).Truncate(0).IntPart(), nil
}
