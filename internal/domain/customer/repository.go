package customer

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines customer persistence operations
type Repository interface {
	Create(ctx context.Context, c *Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	// GetByEmail returns nil, nil when no customer exists for the email.
	GetByEmail(ctx context.Context, email string) (*Customer, error)
	// GetByExternalRef returns nil, nil when no customer carries the reference.
	GetByExternalRef(ctx context.Context, externalRef string) (*Customer, error)
	// List pages the directory, newest first. A non-empty search narrows it
	// to customers whose email or display name contains the term.
	List(ctx context.Context, search string, limit, offset int) ([]*Customer, error)
	Count(ctx context.Context, search string) (int64, error)

	// LockForUpdate acquires a row lock on the customer, serializing all
	// balance activity (and therefore all lot decrements) for that customer.
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Customer, error)

	// UpdateBalances applies signed deltas to the cached projections using
	// optimistic locking against the given version.
	UpdateBalances(ctx context.Context, id uuid.UUID, currentDelta, lifetimeDelta int64, version int) error

	// UpdateIdentity backfills the external reference and/or display name.
	// Empty strings leave the stored value untouched.
	UpdateIdentity(ctx context.Context, id uuid.UUID, externalRef, displayName string) error

	WithTx(tx pgx.Tx) Repository
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	CustomerID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for customer: " + e.CustomerID.String()
}

// ErrCustomerNotFound indicates missing customer
type ErrCustomerNotFound struct {
	CustomerID uuid.UUID
}

func (e ErrCustomerNotFound) Error() string {
	return "customer not found: " + e.CustomerID.String()
}

// Is matches any ErrCustomerNotFound when the target carries a nil ID.
func (e ErrCustomerNotFound) Is(target error) bool {
	t, ok := target.(ErrCustomerNotFound)
	if !ok {
		return false
	}
	if t.CustomerID == uuid.Nil {
		return true
	}
	return e.CustomerID == t.CustomerID
}

// ErrDuplicateEmail indicates email uniqueness violation
type ErrDuplicateEmail struct {
	Email string
}

func (e ErrDuplicateEmail) Error() string {
	return "customer with email already exists: " + e.Email
}
