package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/jmartinez0/rewards/internal/domain/settings"
	"github.com/jmartinez0/rewards/internal/platform/commerce"
	"github.com/stretchr/testify/mock"
)

// Mock implementations of the engine's dependencies

// fakeTxRunner invokes the transaction function directly. The mocked
// repositories ignore the tx handle, so nil stands in for it.
type fakeTxRunner struct {
	beginErr error
}

func (f *fakeTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	return fn(nil)
}

type MockCustomerRepo struct {
	mock.Mock
}

func (m *MockCustomerRepo) Create(ctx context.Context, c *customer.Customer) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCustomerRepo) GetByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerRepo) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerRepo) GetByExternalRef(ctx context.Context, externalRef string) (*customer.Customer, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerRepo) List(ctx context.Context, search string, limit, offset int) ([]*customer.Customer, error) {
	args := m.Called(ctx, search, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*customer.Customer), args.Error(1)
}

func (m *MockCustomerRepo) Count(ctx context.Context, search string) (int64, error) {
	args := m.Called(ctx, search)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCustomerRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerRepo) UpdateBalances(ctx context.Context, id uuid.UUID, currentDelta, lifetimeDelta int64, version int) error {
	args := m.Called(ctx, id, currentDelta, lifetimeDelta, version)
	return args.Error(0)
}

func (m *MockCustomerRepo) UpdateIdentity(ctx context.Context, id uuid.UUID, externalRef, displayName string) error {
	args := m.Called(ctx, id, externalRef, displayName)
	return args.Error(0)
}

func (m *MockCustomerRepo) WithTx(tx pgx.Tx) customer.Repository {
	m.Called(tx)
	return m
}

type MockLedgerRepo struct {
	mock.Mock
}

func (m *MockLedgerRepo) Create(ctx context.Context, entry *ledger.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepo) DecrementLotRemaining(ctx context.Context, lotID int64, amount int64) error {
	args := m.Called(ctx, lotID, amount)
	return args.Error(0)
}

func (m *MockLedgerRepo) GetEarnByOrder(ctx context.Context, orderID string) (*ledger.Entry, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) HasSpendForOrder(ctx context.Context, customerID uuid.UUID, orderID string) (bool, error) {
	args := m.Called(ctx, customerID, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepo) HasEntryForRefund(ctx context.Context, orderID, refundID string) (bool, error) {
	args := m.Called(ctx, orderID, refundID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepo) ListEligibleLots(ctx context.Context, customerID uuid.UUID, asOf time.Time) ([]*ledger.Entry, error) {
	args := m.Called(ctx, customerID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) ListExpiredLots(ctx context.Context, customerID uuid.UUID, asOf time.Time) ([]*ledger.Entry, error) {
	args := m.Called(ctx, customerID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) SumSpendForOrder(ctx context.Context, orderID string) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) SumRefundCreditsForOrder(ctx context.Context, orderID string) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	args := m.Called(ctx, customerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepo) CountByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepo) WithTx(tx pgx.Tx) ledger.Repository {
	m.Called(tx)
	return m
}

type MockSettingsRepo struct {
	mock.Mock
}

func (m *MockSettingsRepo) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockSettingsRepo) Upsert(ctx context.Context, s *settings.Settings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSettingsRepo) WithTx(tx pgx.Tx) settings.Repository {
	m.Called(tx)
	return m
}

type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Enqueue(c *customer.Customer) {
	m.Called(c)
}

type MockOrderSource struct {
	mock.Mock
}

func (m *MockOrderSource) GetOrderSummary(ctx context.Context, orderID string) (*commerce.OrderSummary, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*commerce.OrderSummary), args.Error(1)
}

// lotWithRemaining builds a stored lot for allocation tests.
func lotWithRemaining(id int64, customerID uuid.UUID, amount, remaining int64, createdAt time.Time) *ledger.Entry {
	r := remaining
	return &ledger.Entry{
		ID:              id,
		CustomerID:      customerID,
		Type:            ledger.TypeEarn,
		AmountDelta:     amount,
		RemainingAmount: &r,
		ReasonCode:      ledger.ReasonOrderEarn,
		CreatedAt:       createdAt,
	}
}
