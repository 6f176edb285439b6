package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestAllocator_Deplete_FIFO(t *testing.T) {
	customerID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mockLedger := &MockLedgerRepo{}
	allocator := NewAllocator(slog.Default())

	lots := []*ledger.Entry{
		lotWithRemaining(1, customerID, 100, 100, base),
		lotWithRemaining(2, customerID, 200, 200, base.Add(time.Hour)),
		lotWithRemaining(3, customerID, 50, 50, base.Add(2*time.Hour)),
	}

	mockLedger.On("ListEligibleLots", mock.Anything, customerID, mock.Anything).Return(lots, nil)
	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(1), int64(100)).Return(nil).Once()
	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(2), int64(150)).Return(nil).Once()
	mockLedger.On("Create", mock.Anything, mock.MatchedBy(func(e *ledger.Entry) bool {
		return e.Type == ledger.TypeSpend && e.AmountDelta < 0 && e.SourceLotID != nil
	})).Return(nil)

	alloc, err := allocator.Deplete(context.Background(), mockLedger, customerID, 250, base.Add(3*time.Hour), DepletionSpec{
		Type:    ledger.TypeSpend,
		Reason:  ledger.ReasonOrderSpend,
		OrderID: "order-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(250), alloc.Depleted)
	assert.Len(t, alloc.Entries, 2)
	assert.Equal(t, int64(-100), alloc.Entries[0].AmountDelta)
	assert.Equal(t, int64(1), *alloc.Entries[0].SourceLotID)
	assert.Equal(t, int64(-150), alloc.Entries[1].AmountDelta)
	assert.Equal(t, int64(2), *alloc.Entries[1].SourceLotID)
	assert.Equal(t, "order-1", alloc.Entries[0].OrderID)
	// the third lot stays untouched
	mockLedger.AssertNotCalled(t, "DecrementLotRemaining", mock.Anything, int64(3), mock.Anything)
	mockLedger.AssertExpectations(t)
}

func TestAllocator_Deplete_Shortfall(t *testing.T) {
	customerID := uuid.New()
	base := time.Now()

	mockLedger := &MockLedgerRepo{}
	allocator := NewAllocator(slog.Default())

	lots := []*ledger.Entry{
		lotWithRemaining(7, customerID, 100, 40, base),
	}

	mockLedger.On("ListEligibleLots", mock.Anything, customerID, mock.Anything).Return(lots, nil)
	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(7), int64(40)).Return(nil)
	mockLedger.On("Create", mock.Anything, mock.Anything).Return(nil)

	alloc, err := allocator.Deplete(context.Background(), mockLedger, customerID, 100, base, DepletionSpec{
		Type:   ledger.TypeAdjust,
		Reason: ledger.ReasonManualRevoke,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(40), alloc.Depleted)
	assert.Len(t, alloc.Entries, 1)
}

func TestAllocator_Deplete_NoEligibleLots(t *testing.T) {
	customerID := uuid.New()

	mockLedger := &MockLedgerRepo{}
	allocator := NewAllocator(slog.Default())

	mockLedger.On("ListEligibleLots", mock.Anything, customerID, mock.Anything).Return([]*ledger.Entry{}, nil)

	alloc, err := allocator.Deplete(context.Background(), mockLedger, customerID, 50, time.Now(), DepletionSpec{
		Type:   ledger.TypeSpend,
		Reason: ledger.ReasonOrderSpend,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), alloc.Depleted)
	assert.Empty(t, alloc.Entries)
	mockLedger.AssertNotCalled(t, "DecrementLotRemaining", mock.Anything, mock.Anything, mock.Anything)
}

func TestAllocator_Deplete_ZeroAmount(t *testing.T) {
	allocator := NewAllocator(slog.Default())
	mockLedger := &MockLedgerRepo{}

	alloc, err := allocator.Deplete(context.Background(), mockLedger, uuid.New(), 0, time.Now(), DepletionSpec{})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), alloc.Depleted)
	mockLedger.AssertNotCalled(t, "ListEligibleLots", mock.Anything, mock.Anything, mock.Anything)
}

func TestAllocator_Deplete_GuardedDecrementFails(t *testing.T) {
	customerID := uuid.New()
	base := time.Now()

	mockLedger := &MockLedgerRepo{}
	allocator := NewAllocator(slog.Default())

	lots := []*ledger.Entry{
		lotWithRemaining(9, customerID, 100, 100, base),
	}

	mockLedger.On("ListEligibleLots", mock.Anything, customerID, mock.Anything).Return(lots, nil)
	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(9), int64(60)).
		Return(ledger.ErrLotOverdrawn{LotID: 9, Amount: 60})

	alloc, err := allocator.Deplete(context.Background(), mockLedger, customerID, 60, base, DepletionSpec{
		Type:   ledger.TypeSpend,
		Reason: ledger.ReasonOrderSpend,
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrLotOverdrawn{})
	assert.Nil(t, alloc)
	mockLedger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAllocator_DepleteFromLot(t *testing.T) {
	customerID := uuid.New()
	lot := lotWithRemaining(4, customerID, 300, 120, time.Now())

	mockLedger := &MockLedgerRepo{}
	allocator := NewAllocator(slog.Default())

	mockLedger.On("DecrementLotRemaining", mock.Anything, int64(4), int64(120)).Return(nil)
	mockLedger.On("Create", mock.Anything, mock.MatchedBy(func(e *ledger.Entry) bool {
		return e.Type == ledger.TypeAdjust &&
			e.ReasonCode == ledger.ReasonRefundEarnReversal &&
			e.AmountDelta == -120 &&
			e.RelatedRef == "refund-1"
	})).Return(nil)

	// requesting more than the lot holds caps at the remainder
	alloc, err := allocator.DepleteFromLot(context.Background(), mockLedger, lot, 500, DepletionSpec{
		Type:       ledger.TypeAdjust,
		Reason:     ledger.ReasonRefundEarnReversal,
		OrderID:    "order-4",
		RelatedRef: "refund-1",
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(120), alloc.Depleted)
	mockLedger.AssertExpectations(t)
}

func TestAllocator_DepleteFromLot_NotALot(t *testing.T) {
	entry := &ledger.Entry{
		ID:          11,
		CustomerID:  uuid.New(),
		Type:        ledger.TypeSpend,
		AmountDelta: -50,
	}

	allocator := NewAllocator(slog.Default())

	alloc, err := allocator.DepleteFromLot(context.Background(), &MockLedgerRepo{}, entry, 10, DepletionSpec{})

	assert.ErrorIs(t, err, ledger.ErrNotALot)
	assert.Nil(t, alloc)
}

func TestAllocator_DepleteFromLot_DrainedLot(t *testing.T) {
	lot := lotWithRemaining(5, uuid.New(), 100, 0, time.Now())

	allocator := NewAllocator(slog.Default())
	mockLedger := &MockLedgerRepo{}

	alloc, err := allocator.DepleteFromLot(context.Background(), mockLedger, lot, 30, DepletionSpec{
		Type:   ledger.TypeAdjust,
		Reason: ledger.ReasonRefundEarnReversal,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), alloc.Depleted)
	mockLedger.AssertNotCalled(t, "DecrementLotRemaining", mock.Anything, mock.Anything, mock.Anything)
}
