package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/settings"
	"github.com/jmartinez0/rewards/internal/domain/shared"
	"github.com/jmartinez0/rewards/internal/engine"
)

// The handler layer depends on these engine surfaces. The concrete processors
// satisfy them; handler tests substitute mocks.

type EarnService interface {
	ProcessOrderPaid(ctx context.Context, event *shared.OrderPaidEvent) (*customer.Customer, bool, error)
}

type SpendService interface {
	Authorize(ctx context.Context, externalRef string, requested, cartTotalCents int64) (*engine.Authorization, error)
	ProcessSpend(ctx context.Context, event *shared.OrderPaidEvent) (*customer.Customer, bool, error)
}

type RefundService interface {
	ProcessRefundCreated(ctx context.Context, event *shared.RefundCreatedEvent) (*customer.Customer, bool, error)
}

type AdjustmentService interface {
	Increase(ctx context.Context, customerID uuid.UUID, amount int64, reason string) (*customer.Customer, error)
	Decrease(ctx context.Context, customerID uuid.UUID, amount int64, reason string) (*customer.Customer, error)
}

type ExpireService interface {
	Sweep(ctx context.Context, customerID uuid.UUID) (*engine.ExpireResult, error)
}

type HistoryService interface {
	Balance(ctx context.Context, customerID uuid.UUID) (*customer.Customer, error)
	BalanceByExternalRef(ctx context.Context, externalRef string) (*customer.Customer, error)
	ListCustomers(ctx context.Context, search string, page, perPage int) ([]*customer.Customer, int64, error)
	CustomerHistory(ctx context.Context, customerID uuid.UUID, page, perPage int) ([]*engine.HistoryEvent, int64, error)
}

type SettingsService interface {
	Get(ctx context.Context) (*settings.Settings, error)
	Update(ctx context.Context, next *settings.Settings) (*settings.Settings, error)
}
