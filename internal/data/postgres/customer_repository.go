// Package postgres provides PostgreSQL implementations of the domain
// repositories. All methods run against the caller's querier, so the same
// repository serves pool reads and in-transaction writes via WithTx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmartinez0/rewards/internal/domain/customer"
	"github.com/jmartinez0/rewards/internal/platform/persistence"
)

// CustomerRepository implements the customer.Repository interface for PostgreSQL
type CustomerRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewCustomerRepository creates a new PostgreSQL customer repository.
func NewCustomerRepository(logger *slog.Logger, db *persistence.PostgresDB) customer.Repository {
	return &CustomerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx rebinds the repository onto a transaction so customer reads and
// balance updates share the event's atomic scope.
func (r *CustomerRepository) WithTx(tx pgx.Tx) customer.Repository {
	return &CustomerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const customerColumns = `id, external_ref, email, display_name, current_balance, lifetime_balance, version, created_at, updated_at`

func (r *CustomerRepository) scanCustomer(row pgx.Row) (*customer.Customer, error) {
	var c customer.Customer
	var externalRef, displayName *string
	err := row.Scan(
		&c.ID,
		&externalRef,
		&c.Email,
		&displayName,
		&c.CurrentBalance,
		&c.LifetimeBalance,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if externalRef != nil {
		c.ExternalRef = *externalRef
	}
	if displayName != nil {
		c.DisplayName = *displayName
	}
	return &c, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create stores a new customer. A duplicate email surfaces as
// customer.ErrDuplicateEmail so concurrent first-order events can fall back
// to a lookup.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO customers (id, external_ref, email, display_name, current_balance, lifetime_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.querier.Exec(ctx, query,
		c.ID,
		nullableString(c.ExternalRef),
		c.Email,
		nullableString(c.DisplayName),
		c.CurrentBalance,
		c.LifetimeBalance,
		c.Version,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "email") {
			return customer.ErrDuplicateEmail{Email: c.Email}
		}
		r.logger.Error("Failed to create customer", "error", err)
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// GetByID retrieves a customer by its ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	c, err := r.scanCustomer(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrCustomerNotFound{CustomerID: id}
		}
		r.logger.Error("Failed to get customer", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return c, nil
}

// GetByEmail retrieves a customer by email, returning nil, nil when unseen
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE email = $1`

	c, err := r.scanCustomer(r.querier.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get customer by email", "error", err)
		return nil, fmt.Errorf("failed to get customer by email: %w", err)
	}

	return c, nil
}

// GetByExternalRef retrieves a customer by its platform reference, returning
// nil, nil when no customer carries it
func (r *CustomerRepository) GetByExternalRef(ctx context.Context, externalRef string) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE external_ref = $1`

	c, err := r.scanCustomer(r.querier.QueryRow(ctx, query, externalRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get customer by external ref", "external_ref", externalRef, "error", err)
		return nil, fmt.Errorf("failed to get customer by external ref: %w", err)
	}

	return c, nil
}

// List returns customers ordered by most recently created, optionally
// narrowed to those whose email or display name contains the search term.
func (r *CustomerRepository) List(ctx context.Context, search string, limit, offset int) ([]*customer.Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers
		WHERE $1 = '' OR email ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, strings.TrimSpace(search), limit, offset)
	if err != nil {
		r.logger.Error("Failed to list customers", "error", err)
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*customer.Customer
	for rows.Next() {
		c, err := r.scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read customers: %w", err)
	}

	return customers, nil
}

// Count returns the number of customers matching the same filter as List
func (r *CustomerRepository) Count(ctx context.Context, search string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM customers
		WHERE $1 = '' OR email ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%'
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, strings.TrimSpace(search)).Scan(&count); err != nil {
		r.logger.Error("Failed to count customers", "error", err)
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}
	return count, nil
}

// LockForUpdate obtains a row lock on the customer and returns its current
// state. Must be used within a transaction; it serializes all balance
// activity for one customer, which also protects that customer's lots.
func (r *CustomerRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 FOR UPDATE`

	c, err := r.scanCustomer(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrCustomerNotFound{CustomerID: id}
		}
		r.logger.Error("Failed to lock customer for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock customer for update: %w", err)
	}

	return c, nil
}

// UpdateBalances applies signed deltas to the cached projections using
// optimistic locking. Returns ErrConcurrentModification if the customer was
// modified between read and update.
func (r *CustomerRepository) UpdateBalances(ctx context.Context, id uuid.UUID, currentDelta, lifetimeDelta int64, version int) error {
	query := `
		UPDATE customers
		SET current_balance = current_balance + $1,
		    lifetime_balance = lifetime_balance + $2,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $3 AND version = $4
	`

	result, err := r.querier.Exec(ctx, query, currentDelta, lifetimeDelta, id, version)
	if err != nil {
		r.logger.Error("Failed to update customer balances", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update customer balances: %w", err)
	}

	if result.RowsAffected() == 0 {
		return customer.ErrConcurrentModification{CustomerID: id}
	}

	return nil
}

// UpdateIdentity backfills the external reference and/or display name once
// they become known from a later order. Empty arguments leave the stored
// values untouched.
func (r *CustomerRepository) UpdateIdentity(ctx context.Context, id uuid.UUID, externalRef, displayName string) error {
	query := `
		UPDATE customers
		SET external_ref = COALESCE(NULLIF($1, ''), external_ref),
		    display_name = COALESCE(NULLIF($2, ''), display_name),
		    updated_at = NOW()
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, externalRef, displayName, id)
	if err != nil {
		r.logger.Error("Failed to update customer identity", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update customer identity: %w", err)
	}

	if result.RowsAffected() == 0 {
		return customer.ErrCustomerNotFound{CustomerID: id}
	}

	return nil
}
