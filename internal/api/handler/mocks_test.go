package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/settings"
	"github.com/jmartinez0/rewards/internal/domain/shared"
	"github.com/jmartinez0/rewards/internal/engine"
	"github.com/stretchr/testify/mock"
)

// Mock implementations of the engine surfaces the handlers call

type MockEarnService struct {
	mock.Mock
}

func (m *MockEarnService) ProcessOrderPaid(ctx context.Context, event *shared.OrderPaidEvent) (*customer.Customer, bool, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*customer.Customer), args.Bool(1), args.Error(2)
}

type MockSpendService struct {
	mock.Mock
}

func (m *MockSpendService) Authorize(ctx context.Context, externalRef string, requested, cartTotalCents int64) (*engine.Authorization, error) {
	args := m.Called(ctx, externalRef, requested, cartTotalCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.Authorization), args.Error(1)
}

func (m *MockSpendService) ProcessSpend(ctx context.Context, event *shared.OrderPaidEvent) (*customer.Customer, bool, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*customer.Customer), args.Bool(1), args.Error(2)
}

type MockRefundService struct {
	mock.Mock
}

func (m *MockRefundService) ProcessRefundCreated(ctx context.Context, event *shared.RefundCreatedEvent) (*customer.Customer, bool, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*customer.Customer), args.Bool(1), args.Error(2)
}

type MockAdjustmentService struct {
	mock.Mock
}

func (m *MockAdjustmentService) Increase(ctx context.Context, customerID uuid.UUID, amount int64, reason string) (*customer.Customer, error) {
	args := m.Called(ctx, customerID, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockAdjustmentService) Decrease(ctx context.Context, customerID uuid.UUID, amount int64, reason string) (*customer.Customer, error) {
	args := m.Called(ctx, customerID, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

type MockExpireService struct {
	mock.Mock
}

func (m *MockExpireService) Sweep(ctx context.Context, customerID uuid.UUID) (*engine.ExpireResult, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.ExpireResult), args.Error(1)
}

type MockHistoryService struct {
	mock.Mock
}

func (m *MockHistoryService) Balance(ctx context.Context, customerID uuid.UUID) (*customer.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockHistoryService) BalanceByExternalRef(ctx context.Context, externalRef string) (*customer.Customer, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockHistoryService) ListCustomers(ctx context.Context, search string, page, perPage int) ([]*customer.Customer, int64, error) {
	args := m.Called(ctx, search, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*customer.Customer), args.Get(1).(int64), args.Error(2)
}

func (m *MockHistoryService) CustomerHistory(ctx context.Context, customerID uuid.UUID, page, perPage int) ([]*engine.HistoryEvent, int64, error) {
	args := m.Called(ctx, customerID, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*engine.HistoryEvent), args.Get(1).(int64), args.Error(2)
}

type MockSettingsService struct {
	mock.Mock
}

func (m *MockSettingsService) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockSettingsService) Update(ctx context.Context, next *settings.Settings) (*settings.Settings, error) {
	args := m.Called(ctx, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.Default()
}
