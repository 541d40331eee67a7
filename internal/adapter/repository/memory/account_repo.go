package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
)

// record is one row of the table. version increases on every committed write.
type record struct {
	balance decimal.Decimal
	version uint64
}

// accountRepository is an in-process transactional account table.
// Units of work run optimistically and are validated at commit: a unit whose
// reads were overwritten by a concurrent commit is aborted with domain.ErrConflict.
type accountRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]record
}

// NewAccountRepository creates a new, empty in-memory account repository
func NewAccountRepository() domain.AccountRepository {
	return &accountRepository{accounts: make(map[uuid.UUID]record)}
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.accounts[id]
	if !ok {
		return nil, domain.NewAccountNotFoundError(id)
	}
	return &domain.Account{ID: id, Balance: rec.balance}, nil
}

// List retrieves a snapshot of every account ordered by ID
func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	accounts := make([]*domain.Account, 0, len(r.accounts))
	for id, rec := range r.accounts {
		accounts = append(accounts, &domain.Account{ID: id, Balance: rec.balance})
	}
	r.mu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID.String() < accounts[j].ID.String()
	})
	return accounts, nil
}

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := account.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return fmt.Errorf("failed to create account %s: %w", account.ID, domain.ErrAccountAlreadyExists)
	}
	r.accounts[account.ID] = record{balance: account.Balance, version: 1}
	return nil
}

// InTransaction runs fn against a private view of the table and commits its
// staged writes atomically if every version it read is still current
func (r *accountRepository) InTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.AccountTx) error) error {
	tx := &accountTx{
		repo:   r,
		reads:  make(map[uuid.UUID]uint64),
		writes: make(map[uuid.UUID]decimal.Decimal),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	// An abandoned request must not commit
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.commit(tx)
}

// commit validates the read set and applies the write set under the table lock
func (r *accountRepository) commit(tx *accountTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, readVersion := range tx.reads {
		current, ok := r.accounts[id]
		// version 0 marks an account that was absent when read
		if (!ok && readVersion != 0) || (ok && current.version != readVersion) {
			return fmt.Errorf("%w: account %s changed since it was read", domain.ErrConflict, id)
		}
	}

	for id := range tx.writes {
		if _, ok := r.accounts[id]; !ok {
			return domain.NewAccountNotFoundError(id)
		}
	}

	for id, balance := range tx.writes {
		current := r.accounts[id]
		r.accounts[id] = record{balance: balance, version: current.version + 1}
	}

	return nil
}

// accountTx buffers writes until commit; it is used by a single goroutine
type accountTx struct {
	repo   *accountRepository
	reads  map[uuid.UUID]uint64
	writes map[uuid.UUID]decimal.Decimal
}

func (tx *accountTx) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if balance, ok := tx.writes[id]; ok {
		return &domain.Account{ID: id, Balance: balance}, nil
	}

	tx.repo.mu.RLock()
	rec, ok := tx.repo.accounts[id]
	tx.repo.mu.RUnlock()

	version := rec.version
	if !ok {
		version = 0
	}

	if prev, seen := tx.reads[id]; seen && prev != version {
		return nil, fmt.Errorf("%w: account %s changed during the unit of work", domain.ErrConflict, id)
	}
	tx.reads[id] = version

	if !ok {
		return nil, domain.NewAccountNotFoundError(id)
	}
	return &domain.Account{ID: id, Balance: rec.balance}, nil
}

func (tx *accountTx) Save(ctx context.Context, accounts ...*domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, acc := range accounts {
		if err := acc.Validate(); err != nil {
			return fmt.Errorf("failed to save account %s: %w", acc.ID, err)
		}
	}
	for _, acc := range accounts {
		tx.writes[acc.ID] = acc.Balance
	}
	return nil
}
