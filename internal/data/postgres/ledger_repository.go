package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmartinez0/rewards/internal/domain/ledger"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository.
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx rebinds the repository onto a transaction. Entry writes and lot
// decrements always run inside the caller's transaction.
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const entryColumns = `id, customer_id, type, amount_delta, remaining_amount, source_lot_id, order_id, adjustment_group_id, reason_code, related_external_id, earn_rate, expires_at, notes, created_at`

func (r *LedgerRepository) scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	var orderID, relatedRef *string
	err := row.Scan(
		&e.ID,
		&e.CustomerID,
		&e.Type,
		&e.AmountDelta,
		&e.RemainingAmount,
		&e.SourceLotID,
		&orderID,
		&e.AdjustmentGroup,
		&e.ReasonCode,
		&relatedRef,
		&e.EarnRate,
		&e.ExpiresAt,
		&e.Notes,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orderID != nil {
		e.OrderID = *orderID
	}
	if relatedRef != nil {
		e.RelatedRef = *relatedRef
	}
	return &e, nil
}

// Create appends an entry and fills in its generated ID and timestamp. The
// generated BIGSERIAL id is what makes FIFO tie-breaking deterministic for
// lots created in the same instant.
func (r *LedgerRepository) Create(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (customer_id, type, amount_delta, remaining_amount, source_lot_id, order_id, adjustment_group_id, reason_code, related_external_id, earn_rate, expires_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`

	err := r.querier.QueryRow(ctx, query,
		entry.CustomerID,
		entry.Type,
		entry.AmountDelta,
		entry.RemainingAmount,
		entry.SourceLotID,
		nullableString(entry.OrderID),
		entry.AdjustmentGroup,
		entry.ReasonCode,
		nullableString(entry.RelatedRef),
		entry.EarnRate,
		entry.ExpiresAt,
		entry.Notes,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create ledger entry", "customer_id", entry.CustomerID.String(), "type", entry.Type, "error", err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

// DecrementLotRemaining subtracts amount from a lot's remaining value. The
// guard in the WHERE clause keeps remaining_amount non-negative even when a
// concurrent drain slipped in after the caller read the lot.
func (r *LedgerRepository) DecrementLotRemaining(ctx context.Context, lotID int64, amount int64) error {
	if amount <= 0 {
		return ledger.ErrInvalidAmount
	}

	query := `
		UPDATE ledger_entries
		SET remaining_amount = remaining_amount - $1
		WHERE id = $2 AND remaining_amount >= $1
	`

	result, err := r.querier.Exec(ctx, query, amount, lotID)
	if err != nil {
		r.logger.Error("Failed to decrement lot", "lot_id", lotID, "amount", amount, "error", err)
		return fmt.Errorf("failed to decrement lot: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrLotOverdrawn{LotID: lotID, Amount: amount}
	}

	return nil
}

// GetEarnByOrder returns the order's EARN lot, or nil, nil when the order has
// not been processed yet. This is the earn idempotency check.
func (r *LedgerRepository) GetEarnByOrder(ctx context.Context, orderID string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE order_id = $1 AND type = 'EARN' LIMIT 1`

	e, err := r.scanEntry(r.querier.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get earn entry by order", "order_id", orderID, "error", err)
		return nil, fmt.Errorf("failed to get earn entry by order: %w", err)
	}

	return e, nil
}

// HasSpendForOrder reports whether a SPEND set was already recorded for the
// (customer, order) idempotency key.
func (r *LedgerRepository) HasSpendForOrder(ctx context.Context, customerID uuid.UUID, orderID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE customer_id = $1 AND order_id = $2 AND type = 'SPEND')`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, customerID, orderID).Scan(&exists); err != nil {
		r.logger.Error("Failed to check spend idempotency", "order_id", orderID, "error", err)
		return false, fmt.Errorf("failed to check spend idempotency: %w", err)
	}

	return exists, nil
}

// HasEntryForRefund reports whether the refund was already reconciled. The
// refund's own id is stored in related_external_id, so redelivered refund
// webhooks no-op regardless of note text.
func (r *LedgerRepository) HasEntryForRefund(ctx context.Context, orderID, refundID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE order_id = $1 AND type = 'ADJUST' AND related_external_id = $2)`

	var exists bool
	if err := r.querier.QueryRow(ctx, query, orderID, refundID).Scan(&exists); err != nil {
		r.logger.Error("Failed to check refund idempotency", "order_id", orderID, "refund_id", refundID, "error", err)
		return false, fmt.Errorf("failed to check refund idempotency: %w", err)
	}

	return exists, nil
}

// ListEligibleLots returns lots with remaining value that have not expired at
// asOf, in FIFO order. The (created_at, id) ordering is a property of stored
// data: it does not depend on which request drains the lots.
func (r *LedgerRepository) ListEligibleLots(ctx context.Context, customerID uuid.UUID, asOf time.Time) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE customer_id = $1
		  AND remaining_amount > 0
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at ASC, id ASC
	`

	return r.listEntries(ctx, query, customerID, asOf)
}

// ListExpiredLots returns lots that still hold value but whose expiration has
// passed at asOf.
func (r *LedgerRepository) ListExpiredLots(ctx context.Context, customerID uuid.UUID, asOf time.Time) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE customer_id = $1
		  AND remaining_amount > 0
		  AND expires_at IS NOT NULL
		  AND expires_at <= $2
		ORDER BY created_at ASC, id ASC
	`

	return r.listEntries(ctx, query, customerID, asOf)
}

// SumSpendForOrder returns the absolute value spent against the order.
func (r *LedgerRepository) SumSpendForOrder(ctx context.Context, orderID string) (int64, error) {
	query := `SELECT COALESCE(SUM(-amount_delta), 0) FROM ledger_entries WHERE order_id = $1 AND type = 'SPEND'`

	var total int64
	if err := r.querier.QueryRow(ctx, query, orderID).Scan(&total); err != nil {
		r.logger.Error("Failed to sum spend for order", "order_id", orderID, "error", err)
		return 0, fmt.Errorf("failed to sum spend for order: %w", err)
	}
	if total < 0 {
		total = 0
	}

	return total, nil
}

// SumRefundCreditsForOrder returns the total already returned to the customer
// by prior refunds of the order, so multiple partial refunds never credit the
// same spend twice.
func (r *LedgerRepository) SumRefundCreditsForOrder(ctx context.Context, orderID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount_delta), 0)
		FROM ledger_entries
		WHERE order_id = $1 AND type = 'ADJUST' AND reason_code = $2 AND amount_delta > 0
	`

	var total int64
	if err := r.querier.QueryRow(ctx, query, orderID, ledger.ReasonRefundCredit).Scan(&total); err != nil {
		r.logger.Error("Failed to sum refund credits for order", "order_id", orderID, "error", err)
		return 0, fmt.Errorf("failed to sum refund credits for order: %w", err)
	}
	if total < 0 {
		total = 0
	}

	return total, nil
}

// ListByCustomer returns the customer's entries, newest first
func (r *LedgerRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, customerID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "customer_id", customerID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

// CountByCustomer returns the total number of entries for a customer
func (r *LedgerRepository) CountByCustomer(ctx context.Context, customerID uuid.UUID) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE customer_id = $1`, customerID).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger entries", "customer_id", customerID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

func (r *LedgerRepository) listEntries(ctx context.Context, query string, customerID uuid.UUID, asOf time.Time) ([]*ledger.Entry, error) {
	rows, err := r.querier.Query(ctx, query, customerID, asOf)
	if err != nil {
		r.logger.Error("Failed to list lots", "customer_id", customerID.String(), "error", err)
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	defer rows.Close()

	return r.collectEntries(rows)
}

func (r *LedgerRepository) collectEntries(rows pgx.Rows) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}
	return entries, nil
}
