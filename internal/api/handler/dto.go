package handler

import (
	"time"

	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/settings"
	"github.com/jmartinez0/rewards/internal/engine"
)

// AuthorizeSpendRequest asks to reserve balance as a checkout discount
type AuthorizeSpendRequest struct {
	CustomerRef    string `json:"customer_ref" binding:"required"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	CartTotalCents int64  `json:"cart_total_cents" binding:"min=0"`
}

// AuthorizationResponse is the approved redemption
type AuthorizationResponse struct {
	Approved       int64 `json:"approved"`
	CurrentBalance int64 `json:"current_balance"`
}

// AdjustmentRequest is a manual balance correction from admin tooling
type AdjustmentRequest struct {
	Direction string `json:"direction" binding:"required,oneof=increase decrease"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reason    string `json:"reason" binding:"required"`
}

// SettingsRequest replaces the program configuration
type SettingsRequest struct {
	EarnRate       *int64 `json:"earn_rate" binding:"required,min=0"`
	ExpirationDays *int   `json:"expiration_days" binding:"omitempty,gt=0"`
	Enabled        *bool  `json:"enabled" binding:"required"`
}

// SettingsResponse represents the program configuration in API responses
type SettingsResponse struct {
	EarnRate       int64  `json:"earn_rate"`
	ExpirationDays *int   `json:"expiration_days,omitempty"`
	Enabled        bool   `json:"enabled"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// CustomerResponse represents a customer in API responses
type CustomerResponse struct {
	ID              string `json:"id"`
	ExternalRef     string `json:"external_ref,omitempty"`
	Email           string `json:"email"`
	DisplayName     string `json:"display_name,omitempty"`
	CurrentBalance  int64  `json:"current_balance"`
	LifetimeBalance int64  `json:"lifetime_balance"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// BalanceResponse represents the two cached balance projections
type BalanceResponse struct {
	CurrentBalance  int64 `json:"current_balance"`
	LifetimeBalance int64 `json:"lifetime_balance"`
}

// HistoryEventResponse is one grouped activity line
type HistoryEventResponse struct {
	Kind        string  `json:"kind"`
	AmountDelta int64   `json:"amount_delta"`
	OrderID     string  `json:"order_id,omitempty"`
	ReasonCode  string  `json:"reason_code"`
	Notes       string  `json:"notes,omitempty"`
	OccurredAt  string  `json:"occurred_at"`
	EntryIDs    []int64 `json:"entry_ids"`
}

// ExpireResponse reports an expiration sweep
type ExpireResponse struct {
	ExpiredAmount  int64 `json:"expired_amount"`
	LotsExpired    int   `json:"lots_expired"`
	CurrentBalance int64 `json:"current_balance"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=25" binding:"min=1,max=100"`
}

func mapCustomerToResponse(c *customer.Customer) CustomerResponse {
	return CustomerResponse{
		ID:              c.ID.String(),
		ExternalRef:     c.ExternalRef,
		Email:           c.Email,
		DisplayName:     c.DisplayName,
		CurrentBalance:  c.CurrentBalance,
		LifetimeBalance: c.LifetimeBalance,
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       c.UpdatedAt.Format(time.RFC3339),
	}
}

func mapHistoryEventToResponse(event *engine.HistoryEvent) HistoryEventResponse {
	ids := make([]int64, 0, len(event.Entries))
	for _, entry := range event.Entries {
		ids = append(ids, entry.ID)
	}
	return HistoryEventResponse{
		Kind:        event.Kind,
		AmountDelta: event.AmountDelta,
		OrderID:     event.OrderID,
		ReasonCode:  string(event.ReasonCode),
		Notes:       event.Notes,
		OccurredAt:  event.OccurredAt.Format(time.RFC3339),
		EntryIDs:    ids,
	}
}

func mapSettingsToResponse(s *settings.Settings) SettingsResponse {
	resp := SettingsResponse{
		EarnRate:       s.EarnRate,
		ExpirationDays: s.ExpirationDays,
		Enabled:        s.Enabled,
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
