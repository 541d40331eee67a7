package domain

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account persistence operations
type AccountRepository interface {
	// GetByID retrieves an account by its ID.
	// Returns an error matching ErrAccountNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// List retrieves every account, ordered by ID
	List(ctx context.Context) ([]*Account, error)

	// Create creates a new account
	Create(ctx context.Context, account *Account) error

	// InTransaction runs fn inside a single unit of work at the strictest
	// isolation level the store offers. Nothing fn saved becomes visible
	// unless fn returns nil and the commit succeeds.
	// A serialization failure is reported as an error matching ErrConflict.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx AccountTx) error) error
}

// AccountTx is the view of the store inside one unit of work
type AccountTx interface {
	// GetByID reads an account as part of the unit of work
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// Save writes accounts as part of the unit of work
	Save(ctx context.Context, accounts ...*Account) error
}
