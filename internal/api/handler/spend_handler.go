package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/engine"
)

// SpendHandler serves the storefront's pre-checkout redemption requests.
type SpendHandler struct {
	logger *slog.Logger
	spend  SpendService
}

// NewSpendHandler creates a spend handler.
func NewSpendHandler(logger *slog.Logger, spend SpendService) *SpendHandler {
	return &SpendHandler{logger: logger, spend: spend}
}

// Authorize validates a requested redemption against the customer's balance.
// Nothing is deducted here; the order-paid webhook settles the redemption.
func (h *SpendHandler) Authorize(c *gin.Context) {
	var req AuthorizeSpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	auth, err := h.spend.Authorize(c.Request.Context(), req.CustomerRef, req.Amount, req.CartTotalCents)
	if err != nil {
		var vErr *engine.ValidationError
		switch {
		case errors.As(err, &vErr):
			RespondFieldError(c, vErr.Field, vErr.Message)
		case errors.Is(err, customer.ErrInsufficientBalance):
			RespondConflict(c, "INSUFFICIENT_BALANCE", "Customer balance does not cover the requested amount")
		case errors.Is(err, customer.ErrCustomerNotFound{}):
			RespondNotFound(c, "Customer not found")
		default:
			h.logger.Error("Spend authorization failed", "customer_ref", req.CustomerRef, "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondOK(c, AuthorizationResponse{
		Approved:       auth.Approved,
		CurrentBalance: auth.CurrentBalance,
	})
}
