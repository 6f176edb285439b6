package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
)

// HistoryEvent is one customer-facing activity line. A spend or manual
// decrease touches several lots and therefore several entries; history folds
// each such set into a single event carrying the summed delta.
type HistoryEvent struct {
	Kind        string            `json:"kind"`
	AmountDelta int64             `json:"amount_delta"`
	OrderID     string            `json:"order_id,omitempty"`
	ReasonCode  ledger.ReasonCode `json:"reason_code"`
	Notes       string            `json:"notes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Entries     []*ledger.Entry   `json:"entries"`
}

// HistoryService serves read-only balance and activity queries. It runs
// against the pool directly: reads take no locks and join no transactions.
type HistoryService struct {
	logger    *slog.Logger
	customers customer.Repository
	entries   ledger.Repository
}

// NewHistoryService creates a history reader.
func NewHistoryService(logger *slog.Logger, customers customer.Repository, entries ledger.Repository) *HistoryService {
	return &HistoryService{
		logger:    logger,
		customers: customers,
		entries:   entries,
	}
}

// Balance returns the customer's cached projections.
func (s *HistoryService) Balance(ctx context.Context, customerID uuid.UUID) (*customer.Customer, error) {
	c, err := s.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// BalanceByExternalRef resolves a customer by platform reference.
func (s *HistoryService) BalanceByExternalRef(ctx context.Context, externalRef string) (*customer.Customer, error) {
	c, err := s.customers.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, customer.ErrCustomerNotFound{}
	}
	return c, nil
}

// ListCustomers pages through the customer directory, newest first. A
// non-empty search narrows the page and its total to customers whose email
// or display name contains the term.
func (s *HistoryService) ListCustomers(ctx context.Context, search string, page, perPage int) ([]*customer.Customer, int64, error) {
	limit, offset := pageBounds(page, perPage)

	list, err := s.customers.List(ctx, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.customers.Count(ctx, search)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// CustomerHistory returns a page of the customer's ledger, newest first,
// grouped into activity events. The returned total counts raw entries.
func (s *HistoryService) CustomerHistory(ctx context.Context, customerID uuid.UUID, page, perPage int) ([]*HistoryEvent, int64, error) {
	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(page, perPage)

	list, err := s.entries.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.entries.CountByCustomer(ctx, customerID)
	if err != nil {
		return nil, 0, err
	}

	return groupEntries(list), total, nil
}

// groupEntries folds raw entries into history events. Entries arrive newest
// first; SPEND entries group by order, ADJUST depletions group by their
// adjustment group, everything else stands alone.
func groupEntries(list []*ledger.Entry) []*HistoryEvent {
	events := make([]*HistoryEvent, 0, len(list))
	index := make(map[string]*HistoryEvent)

	for _, entry := range list {
		key := groupKey(entry)
		if key != "" {
			if event, ok := index[key]; ok {
				event.AmountDelta += entry.AmountDelta
				event.Entries = append(event.Entries, entry)
				continue
			}
		}

		event := &HistoryEvent{
			Kind:        eventKind(entry),
			AmountDelta: entry.AmountDelta,
			OrderID:     entry.OrderID,
			ReasonCode:  entry.ReasonCode,
			Notes:       entry.Notes,
			OccurredAt:  entry.CreatedAt,
			Entries:     []*ledger.Entry{entry},
		}
		events = append(events, event)
		if key != "" {
			index[key] = event
		}
	}

	return events
}

func groupKey(entry *ledger.Entry) string {
	switch {
	case entry.Type == ledger.TypeSpend && entry.OrderID != "":
		return "spend:" + entry.OrderID
	case entry.AdjustmentGroup != nil:
		return "group:" + entry.AdjustmentGroup.String()
	default:
		return ""
	}
}

func eventKind(entry *ledger.Entry) string {
	switch entry.Type {
	case ledger.TypeEarn:
		return "earn"
	case ledger.TypeSpend:
		return "spend"
	case ledger.TypeExpire:
		return "expire"
	default:
		switch entry.ReasonCode {
		case ledger.ReasonRefundCredit, ledger.ReasonRefundEarnReversal:
			return "refund"
		}
		return "adjust"
	}
}

func pageBounds(page, perPage int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}
	return perPage, (page - 1) * perPage
}
