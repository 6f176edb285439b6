package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestExpireProcessor_Sweep(t *testing.T) {
	customerID := uuid.New()
	c := &customer.Customer{ID: customerID, CurrentBalance: 700, LifetimeBalance: 900, Version: 4}
	past := time.Now().Add(-time.Hour)

	lotA := lotWithRemaining(1, customerID, 300, 250, past.Add(-48*time.Hour))
	lotA.ExpiresAt = &past
	lotB := lotWithRemaining(2, customerID, 200, 200, past.Add(-24*time.Hour))
	lotB.ExpiresAt = &past

	mockCustomers := &MockCustomerRepo{}
	mockLedger := &MockLedgerRepo{}
	mockMirror := &MockMirror{}
	processor := NewExpireProcessor(slog.Default(), &fakeTxRunner{}, mockCustomers, mockLedger, mockMirror)

	mockCustomers.On("WithTx", mock.Anything).Return(mockCustomers)
	mockLedger.On("WithTx", mock.Anything).Return(mockLedger)
	mockCustomers.On("LockForUpdate", mock.Anything, customerID).Return(c, nil)
	mockLedger.On("ListExpiredLots", mock.Anything, customerID, mock.Anything).Return([]*ledger.Entry{lotA, lotB}, nil)
	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(1), int64(250)).Return(nil)
	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(2), int64(200)).Return(nil)
	mockLedger.On("Create", mock.Anything, mock.MatchedBy(func(e *ledger.Entry) bool {
		return e.Type == ledger.TypeExpire &&
			e.ReasonCode == ledger.ReasonLotExpired &&
			e.AmountDelta < 0 &&
			e.SourceLotID != nil
	})).Return(nil)
	mockCustomers.On("UpdateBalances", mock.Anything, customerID, int64(-450), int64(0), 4).Return(nil)
	mockMirror.On("Enqueue", mock.Anything).Return()

	result, err := processor.Sweep(context.Background(), customerID)

	assert.NoError(t, err)
	assert.Equal(t, int64(450), result.Expired)
	assert.Equal(t, 2, result.Lots)
	assert.Equal(t, int64(250), result.Customer.CurrentBalance)
	assert.Equal(t, int64(900), result.Customer.LifetimeBalance) // lifetime keeps expired value
	mockLedger.AssertExpectations(t)
	mockCustomers.AssertExpectations(t)
}

func TestExpireProcessor_Sweep_NothingExpired(t *testing.T) {
	customerID := uuid.New()
	c := &customer.Customer{ID: customerID, CurrentBalance: 700, Version: 4}

	mockCustomers := &MockCustomerRepo{}
	mockLedger := &MockLedgerRepo{}
	mockMirror := &MockMirror{}
	processor := NewExpireProcessor(slog.Default(), &fakeTxRunner{}, mockCustomers, mockLedger, mockMirror)

	mockCustomers.On("WithTx", mock.Anything).Return(mockCustomers)
	mockLedger.On("WithTx", mock.Anything).Return(mockLedger)
	mockCustomers.On("LockForUpdate", mock.Anything, customerID).Return(c, nil)
	mockLedger.On("ListExpiredLots", mock.Anything, customerID, mock.Anything).Return([]*ledger.Entry{}, nil)

	result, err := processor.Sweep(context.Background(), customerID)

	assert.NoError(t, err)
	assert.Equal(t, int64(0), result.Expired)
	assert.Equal(t, int64(700), result.Customer.CurrentBalance)
	mockCustomers.AssertNotCalled(t, "UpdateBalances", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockMirror.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestExpireProcessor_Sweep_ClampsAtZero(t *testing.T) {
	customerID := uuid.New()
	// projection drifted below the expired lot value
	c := &customer.Customer{ID: customerID, CurrentBalance: 100, Version: 2}
	past := time.Now().Add(-time.Hour)

	lot := lotWithRemaining(3, customerID, 500, 400, past.Add(-24*time.Hour))
	lot.ExpiresAt = &past

	mockCustomers := &MockCustomerRepo{}
	mockLedger := &MockLedgerRepo{}
	mockMirror := &MockMirror{}
	processor := NewExpireProcessor(slog.Default(), &fakeTxRunner{}, mockCustomers, mockLedger, mockMirror)

	mockCustomers.On("WithTx", mock.Anything).Return(mockCustomers)
	mockLedger.On("WithTx", mock.Anything).Return(mockLedger)
	mockCustomers.On("LockForUpdate", mock.Anything, customerID).Return(c, nil)
	mockLedger.On("ListExpiredLots", mock.Anything, customerID, mock.Anything).Return([]*ledger.Entry{lot}, nil)
	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(3), int64(400)).Return(nil)
	mockLedger.On("Create", mock.Anything, mock.Anything).Return(nil)
	mockCustomers.On("UpdateBalances", mock.Anything, customerID, int64(-100), int64(0), 2).Return(nil)
	mockMirror.On("Enqueue", mock.Anything).Return()

	result, err := processor.Sweep(context.Background(), customerID)

	assert.NoError(t, err)
	assert.Equal(t, int64(400), result.Expired)
	assert.Equal(t, int64(0), result.Customer.CurrentBalance)
	mockCustomers.AssertExpectations(t)
}
