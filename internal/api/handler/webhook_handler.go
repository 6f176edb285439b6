package handler

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmartinez0/rewards/internal/api/middleware"
	"github.com/jmartinez0/rewards/internal/domain/shared"
	"github.com/jmartinez0/rewards/internal/metrics"
)

// spendCodePrefix marks the discount code a redemption rides in on. The
// storefront creates codes with this prefix during spend authorization; their
// presence on a paid order confirms the redemption was actually used.
const spendCodePrefix = "REWARDS-"

// WebhookHandler receives the commerce platform's event deliveries. Payloads
// are flattened into normalized events here; the engine never sees raw
// webhook JSON. Responses follow the at-least-once contract: 200 for
// processed work, duplicates and permanent skips, 500 only for failures a
// redelivery could fix.
type WebhookHandler struct {
	logger *slog.Logger
	earn   EarnService
	spend  SpendService
	refund RefundService
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(logger *slog.Logger, earn EarnService, spend SpendService, refund RefundService) *WebhookHandler {
	return &WebhookHandler{
		logger: logger,
		earn:   earn,
		spend:  spend,
		refund: refund,
	}
}

// orderPaidPayload is the slice of the platform's order webhook the ledger
// reads. Money fields arrive as decimal strings.
type orderPaidPayload struct {
	ID              int64                 `json:"id"`
	Email           string                `json:"email"`
	TotalPrice      string                `json:"total_price"`
	ProcessedAt     string                `json:"processed_at"`
	CreatedAt       string                `json:"created_at"`
	Customer        *payloadCustomer      `json:"customer"`
	BillingAddress  *payloadAddress       `json:"billing_address"`
	ShippingAddress *payloadAddress       `json:"shipping_address"`
	DiscountCodes   []payloadDiscountCode `json:"discount_codes"`
}

type payloadCustomer struct {
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	AdminGraphQLID string `json:"admin_graphql_api_id"`
}

type payloadAddress struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type payloadDiscountCode struct {
	Code   string `json:"code"`
	Amount string `json:"amount"`
}

// refundCreatedPayload is the slice of the platform's refund webhook the
// ledger reads.
type refundCreatedPayload struct {
	ID               int64                   `json:"id"`
	OrderID          int64                   `json:"order_id"`
	Transactions     []payloadRefundMoney    `json:"transactions"`
	RefundLineItems  []payloadRefundLineItem `json:"refund_line_items"`
	OrderAdjustments []payloadRefundMoney    `json:"order_adjustments"`
}

type payloadRefundMoney struct {
	Amount string `json:"amount"`
}

type payloadRefundLineItem struct {
	Subtotal string `json:"subtotal"`
}

// OrdersPaid handles the order-paid webhook: earn first, then settlement of
// any redemption the order carries. Both halves are independently idempotent,
// so a redelivery that already earned can still settle a spend that failed
// mid-way last time.
func (h *WebhookHandler) OrdersPaid(c *gin.Context) {
	var payload orderPaidPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("Unreadable order-paid payload", "error", err)
		metrics.WebhookEvents.WithLabelValues("orders_paid", "skipped").Inc()
		RespondOK(c, gin.H{"skipped": "unreadable payload"})
		return
	}

	event, skip := h.flattenOrderPaid(c, &payload)
	if skip != "" {
		h.logger.Info("Skipping order-paid event", "reason", skip, "order_id", payload.ID)
		metrics.WebhookEvents.WithLabelValues("orders_paid", "skipped").Inc()
		RespondOK(c, gin.H{"skipped": skip})
		return
	}

	result, earned, err := h.earn.ProcessOrderPaid(c.Request.Context(), event)
	if err != nil {
		h.logger.Error("Order-paid earn failed", "order_id", event.OrderID, "error", err)
		metrics.WebhookEvents.WithLabelValues("orders_paid", "failed").Inc()
		RespondInternalError(c)
		return
	}

	settled := false
	if event.SpendCents > 0 {
		spendResult, ok, err := h.spend.ProcessSpend(c.Request.Context(), event)
		if err != nil {
			h.logger.Error("Order-paid spend settlement failed", "order_id", event.OrderID, "error", err)
			metrics.WebhookEvents.WithLabelValues("orders_paid", "failed").Inc()
			RespondInternalError(c)
			return
		}
		settled = ok
		if spendResult != nil {
			result = spendResult
		}
	}

	outcome := "duplicate"
	if earned || settled {
		outcome = "processed"
	}
	metrics.WebhookEvents.WithLabelValues("orders_paid", outcome).Inc()

	body := gin.H{"order_id": event.OrderID, "earned": earned, "spend_settled": settled}
	if result != nil {
		body["current_balance"] = result.CurrentBalance
	}
	RespondOK(c, body)
}

// RefundsCreate handles the refund-created webhook.
func (h *WebhookHandler) RefundsCreate(c *gin.Context) {
	var payload refundCreatedPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("Unreadable refund payload", "error", err)
		metrics.WebhookEvents.WithLabelValues("refunds_create", "skipped").Inc()
		RespondOK(c, gin.H{"skipped": "unreadable payload"})
		return
	}

	if payload.ID == 0 || payload.OrderID == 0 {
		metrics.WebhookEvents.WithLabelValues("refunds_create", "skipped").Inc()
		RespondOK(c, gin.H{"skipped": "missing refund or order id"})
		return
	}

	refundedCents, err := deriveRefundTotal(&payload)
	if err != nil {
		h.logger.Warn("Unparseable refund amounts", "refund_id", payload.ID, "error", err)
		metrics.WebhookEvents.WithLabelValues("refunds_create", "skipped").Inc()
		RespondOK(c, gin.H{"skipped": "unparseable amounts"})
		return
	}
	if refundedCents <= 0 {
		metrics.WebhookEvents.WithLabelValues("refunds_create", "skipped").Inc()
		RespondOK(c, gin.H{"skipped": "zero-value refund"})
		return
	}

	event := &shared.RefundCreatedEvent{
		RefundID:      strconv.FormatInt(payload.ID, 10),
		OrderID:       strconv.FormatInt(payload.OrderID, 10),
		RefundedCents: refundedCents,
		CorrelationID: middleware.GetCorrelationID(c),
	}

	result, applied, err := h.refund.ProcessRefundCreated(c.Request.Context(), event)
	if err != nil {
		h.logger.Error("Refund reconciliation failed", "refund_id", event.RefundID, "error", err)
		metrics.WebhookEvents.WithLabelValues("refunds_create", "failed").Inc()
		RespondInternalError(c)
		return
	}

	outcome := "duplicate"
	if applied {
		outcome = "processed"
	}
	metrics.WebhookEvents.WithLabelValues("refunds_create", outcome).Inc()

	body := gin.H{"refund_id": event.RefundID, "applied": applied}
	if result != nil {
		body["current_balance"] = result.CurrentBalance
	}
	RespondOK(c, body)
}

// flattenOrderPaid turns a raw order payload into the normalized event. The
// second return names the skip reason, empty when the event is usable.
func (h *WebhookHandler) flattenOrderPaid(c *gin.Context, payload *orderPaidPayload) (*shared.OrderPaidEvent, string) {
	if payload.ID == 0 {
		return nil, "missing order id"
	}

	email := payload.Email
	if email == "" && payload.Customer != nil {
		email = payload.Customer.Email
	}
	if email == "" {
		// Guest checkout without an email cannot participate.
		return nil, "no customer email"
	}

	totalCents, err := shared.ParseMoneyToCents(payload.TotalPrice)
	if err != nil {
		return nil, "unparseable order total"
	}

	event := &shared.OrderPaidEvent{
		OrderID:       strconv.FormatInt(payload.ID, 10),
		Email:         email,
		DisplayName:   displayName(payload),
		TotalCents:    totalCents,
		ProcessedAt:   orderTimestamp(payload),
		CorrelationID: middleware.GetCorrelationID(c),
	}
	if payload.Customer != nil {
		event.ExternalRef = payload.Customer.AdminGraphQLID
	}

	for _, code := range payload.DiscountCodes {
		if !strings.HasPrefix(code.Code, spendCodePrefix) {
			continue
		}
		cents, err := shared.ParseMoneyToCents(code.Amount)
		if err != nil || cents <= 0 {
			h.logger.Warn("Redemption code with unusable amount",
				"order_id", event.OrderID,
				"code", code.Code,
				"amount", code.Amount,
			)
			continue
		}
		event.SpendCents = cents
		event.SpendCode = code.Code
		break
	}

	return event, ""
}

// displayName resolves a customer-facing name: the customer record first,
// then the billing address, then shipping.
func displayName(payload *orderPaidPayload) string {
	if payload.Customer != nil {
		if name := strings.TrimSpace(payload.Customer.FirstName + " " + payload.Customer.LastName); name != "" {
			return name
		}
	}
	for _, addr := range []*payloadAddress{payload.BillingAddress, payload.ShippingAddress} {
		if addr == nil {
			continue
		}
		if addr.Name != "" {
			return addr.Name
		}
		if name := strings.TrimSpace(addr.FirstName + " " + addr.LastName); name != "" {
			return name
		}
	}
	return ""
}

func orderTimestamp(payload *orderPaidPayload) time.Time {
	for _, raw := range []string{payload.ProcessedAt, payload.CreatedAt} {
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return time.Now()
}

// deriveRefundTotal reduces a refund's money fields to one total with a fixed
// priority: transaction amounts first, then line-item subtotals, then order
// adjustments (whose amounts the platform reports negative).
func deriveRefundTotal(payload *refundCreatedPayload) (int64, error) {
	var total int64
	for _, tx := range payload.Transactions {
		cents, err := shared.ParseMoneyToCents(tx.Amount)
		if err != nil {
			return 0, err
		}
		total += cents
	}
	if total > 0 {
		return total, nil
	}

	total = 0
	for _, item := range payload.RefundLineItems {
		cents, err := shared.ParseMoneyToCents(item.Subtotal)
		if err != nil {
			return 0, err
		}
		total += cents
	}
	if total > 0 {
		return total, nil
	}

	total = 0
	for _, adj := range payload.OrderAdjustments {
		cents, err := shared.ParseMoneyToCents(adj.Amount)
		if err != nil {
			return 0, err
		}
		if cents < 0 {
			cents = -cents
		}
		total += cents
	}
	return total, nil
}
