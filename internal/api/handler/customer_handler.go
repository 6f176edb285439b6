package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/engine"
)

// CustomerHandler serves the customer directory, balances, history and
// admin-driven mutations (manual adjustments, expiration sweeps).
type CustomerHandler struct {
	logger      *slog.Logger
	history     HistoryService
	adjustments AdjustmentService
	expirer     ExpireService
}

// NewCustomerHandler creates a customer handler.
func NewCustomerHandler(logger *slog.Logger, history HistoryService, adjustments AdjustmentService, expirer ExpireService) *CustomerHandler {
	return &CustomerHandler{
		logger:      logger,
		history:     history,
		adjustments: adjustments,
		expirer:     expirer,
	}
}

// List returns a customer directory page, optionally filtered by a search
// term over email and display name.
func (h *CustomerHandler) List(c *gin.Context) {
	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	customers, total, err := h.history.ListCustomers(c.Request.Context(), c.Query("q"), params.Page, params.PerPage)
	if err != nil {
		h.logger.Error("Failed to list customers", "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]CustomerResponse, 0, len(customers))
	for _, cust := range customers {
		responses = append(responses, mapCustomerToResponse(cust))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, params.Page, params.PerPage, int(total))
}

// GetByID returns one customer.
func (h *CustomerHandler) GetByID(c *gin.Context) {
	id, ok := h.customerID(c)
	if !ok {
		return
	}

	cust, err := h.history.Balance(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, id, err)
		return
	}

	RespondOK(c, mapCustomerToResponse(cust))
}

// GetBalance returns the customer's cached balance projections.
func (h *CustomerHandler) GetBalance(c *gin.Context) {
	id, ok := h.customerID(c)
	if !ok {
		return
	}

	cust, err := h.history.Balance(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, id, err)
		return
	}

	RespondOK(c, BalanceResponse{
		CurrentBalance:  cust.CurrentBalance,
		LifetimeBalance: cust.LifetimeBalance,
	})
}

// GetBalanceByRef returns the balance for the customer carrying the given
// platform reference. The storefront knows customers by that reference, not
// by ledger id.
func (h *CustomerHandler) GetBalanceByRef(c *gin.Context) {
	ref := c.Query("customer_ref")
	if ref == "" {
		RespondBadRequest(c, "customer_ref is required")
		return
	}

	cust, err := h.history.BalanceByExternalRef(c.Request.Context(), ref)
	if err != nil {
		if errors.Is(err, customer.ErrCustomerNotFound{}) {
			RespondNotFound(c, "Customer not found")
			return
		}
		h.logger.Error("Customer lookup failed", "customer_ref", ref, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, BalanceResponse{
		CurrentBalance:  cust.CurrentBalance,
		LifetimeBalance: cust.LifetimeBalance,
	})
}

// GetHistory returns a page of the customer's grouped ledger activity.
func (h *CustomerHandler) GetHistory(c *gin.Context) {
	id, ok := h.customerID(c)
	if !ok {
		return
	}

	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	events, total, err := h.history.CustomerHistory(c.Request.Context(), id, params.Page, params.PerPage)
	if err != nil {
		h.respondLookupError(c, id, err)
		return
	}

	responses := make([]HistoryEventResponse, 0, len(events))
	for _, event := range events {
		responses = append(responses, mapHistoryEventToResponse(event))
	}

	RespondWithPaginatedData(c, http.StatusOK, responses, params.Page, params.PerPage, int(total))
}

// Adjust applies a manual balance correction.
func (h *CustomerHandler) Adjust(c *gin.Context) {
	id, ok := h.customerID(c)
	if !ok {
		return
	}

	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var (
		cust *customer.Customer
		err  error
	)
	switch req.Direction {
	case "increase":
		cust, err = h.adjustments.Increase(c.Request.Context(), id, req.Amount, req.Reason)
	case "decrease":
		cust, err = h.adjustments.Decrease(c.Request.Context(), id, req.Amount, req.Reason)
	}
	if err != nil {
		var vErr *engine.ValidationError
		switch {
		case errors.As(err, &vErr):
			RespondFieldError(c, vErr.Field, vErr.Message)
		case errors.Is(err, customer.ErrInsufficientBalance):
			RespondConflict(c, "INSUFFICIENT_BALANCE", "Customer balance does not cover the requested decrease")
		case errors.Is(err, customer.ErrCustomerNotFound{}):
			RespondNotFound(c, "Customer not found")
		default:
			h.logger.Error("Adjustment failed", "customer_id", id.String(), "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondOK(c, mapCustomerToResponse(cust))
}

// Expire runs the expiration sweep for one customer.
func (h *CustomerHandler) Expire(c *gin.Context) {
	id, ok := h.customerID(c)
	if !ok {
		return
	}

	result, err := h.expirer.Sweep(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, id, err)
		return
	}

	RespondOK(c, ExpireResponse{
		ExpiredAmount:  result.Expired,
		LotsExpired:    result.Lots,
		CurrentBalance: result.Customer.CurrentBalance,
	})
}

func (h *CustomerHandler) customerID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid customer ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *CustomerHandler) respondLookupError(c *gin.Context, id uuid.UUID, err error) {
	if errors.Is(err, customer.ErrCustomerNotFound{}) {
		RespondNotFound(c, "Customer not found")
		return
	}
	h.logger.Error("Customer lookup failed", "customer_id", id.String(), "error", err)
	RespondInternalError(c)
}
