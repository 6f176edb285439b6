// Package commerce is the boundary to the merchant's commerce platform. The
// ledger only ever touches the platform through the Client interface: reading
// an order summary during refund reconciliation and mirroring customer
// balances after commit. The mirror is a best-effort cache for storefront
// consumers; the ledger remains the source of truth.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmartinez0/rewards/internal/config"
	"github.com/jmartinez0/rewards/internal/domain/shared"
)

// OrderSummary is the slice of platform order data the refund flow needs.
type OrderSummary struct {
	OrderID     string
	Email       string
	CustomerRef string
	TotalCents  int64
}

// Client reads and writes the commerce platform's view of the program
type Client interface {
	// GetOrderSummary fetches the order's identity and total for refund math.
	GetOrderSummary(ctx context.Context, orderID string) (*OrderSummary, error)

	// SetCustomerBalanceFields mirrors the cached balances onto the platform
	// customer record.
	SetCustomerBalanceFields(ctx context.Context, customerRef string, currentBalance, lifetimeBalance int64) error
}

// ErrOrderNotFound indicates the platform has no such order
var ErrOrderNotFound = errors.New("order not found on platform")

// AdminClient talks to the platform's admin GraphQL endpoint.
type AdminClient struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewAdminClient creates a platform admin API client.
func NewAdminClient(logger *slog.Logger, cfg *config.CommerceConfig) *AdminClient {
	return &AdminClient{
		endpoint:    cfg.AdminURL,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *AdminClient) do(ctx context.Context, req graphqlRequest, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build graphql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.accessToken != "" {
		httpReq.Header.Set("X-Access-Token", c.accessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("platform request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode platform response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("platform returned error: %s", envelope.Errors[0].Message)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode platform data: %w", err)
		}
	}

	return nil
}

const orderSummaryQuery = `
query OrderSummary($id: ID!) {
  order(id: $id) {
    id
    email
    originalTotalPriceSet { shopMoney { amount } }
    totalPriceSet { shopMoney { amount } }
    currentTotalPriceSet { shopMoney { amount } }
    customer { id email }
  }
}
`

// GetOrderSummary fetches the order's identity and total. The total is taken
// as the max of the original, total and current price candidates: refunds
// shrink the current total, and the ratio math needs the pre-refund value.
func (c *AdminClient) GetOrderSummary(ctx context.Context, orderID string) (*OrderSummary, error) {
	var data struct {
		Order *struct {
			ID                    string     `json:"id"`
			Email                 string     `json:"email"`
			OriginalTotalPriceSet *moneySet  `json:"originalTotalPriceSet"`
			TotalPriceSet         *moneySet  `json:"totalPriceSet"`
			CurrentTotalPriceSet  *moneySet  `json:"currentTotalPriceSet"`
			Customer              *struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"customer"`
		} `json:"order"`
	}

	req := graphqlRequest{
		Query:     orderSummaryQuery,
		Variables: map[string]any{"id": orderID},
	}
	if err := c.do(ctx, req, &data); err != nil {
		return nil, err
	}
	if data.Order == nil {
		return nil, ErrOrderNotFound
	}

	summary := &OrderSummary{
		OrderID: data.Order.ID,
		Email:   data.Order.Email,
	}
	if data.Order.Customer != nil {
		summary.CustomerRef = data.Order.Customer.ID
		if summary.Email == "" {
			summary.Email = data.Order.Customer.Email
		}
	}

	for _, set := range []*moneySet{
		data.Order.OriginalTotalPriceSet,
		data.Order.TotalPriceSet,
		data.Order.CurrentTotalPriceSet,
	} {
		cents, err := set.cents()
		if err != nil {
			c.logger.Warn("Skipping unparseable order total candidate", "order_id", orderID, "error", err)
			continue
		}
		if cents > summary.TotalCents {
			summary.TotalCents = cents
		}
	}

	return summary, nil
}

const setBalanceFieldsMutation = `
mutation SetCustomerRewards($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    userErrors { field message }
  }
}
`

// SetCustomerBalanceFields mirrors the balances onto the platform customer
// record as integer metafields.
func (c *AdminClient) SetCustomerBalanceFields(ctx context.Context, customerRef string, currentBalance, lifetimeBalance int64) error {
	var data struct {
		MetafieldsSet struct {
			UserErrors []struct {
				Field   []string `json:"field"`
				Message string   `json:"message"`
			} `json:"userErrors"`
		} `json:"metafieldsSet"`
	}

	req := graphqlRequest{
		Query: setBalanceFieldsMutation,
		Variables: map[string]any{
			"metafields": []map[string]any{
				{
					"ownerId":   customerRef,
					"namespace": "rewards",
					"key":       "current_balance",
					"type":      "number_integer",
					"value":     fmt.Sprintf("%d", currentBalance),
				},
				{
					"ownerId":   customerRef,
					"namespace": "rewards",
					"key":       "lifetime_balance",
					"type":      "number_integer",
					"value":     fmt.Sprintf("%d", lifetimeBalance),
				},
			},
		},
	}
	if err := c.do(ctx, req, &data); err != nil {
		return err
	}
	if len(data.MetafieldsSet.UserErrors) > 0 {
		return fmt.Errorf("platform rejected balance fields: %s", data.MetafieldsSet.UserErrors[0].Message)
	}

	return nil
}

type moneySet struct {
	ShopMoney struct {
		Amount string `json:"amount"`
	} `json:"shopMoney"`
}

func (m *moneySet) cents() (int64, error) {
	if m == nil {
		return 0, nil
	}
	return shared.ParseMoneyToCents(m.ShopMoney.Amount)
}
