package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
)

// Summary represents totals over one snapshot of the accounts
type Summary struct {
	TotalBalance decimal.Decimal
	AccountCount int
}

// AccountService handles account reads and provisioning
type AccountService struct {
	AccountRepo domain.AccountRepository
}

// NewAccountService creates a new AccountService instance
func NewAccountService(accountRepo domain.AccountRepository) *AccountService {
	return &AccountService{
		AccountRepo: accountRepo,
	}
}

// Get returns the account with id, or an error matching domain.ErrAccountNotFound
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.AccountRepo.GetByID(ctx, id)
}

// List returns every account ordered by ID
func (s *AccountService) List(ctx context.Context) ([]*domain.Account, error) {
	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// Summary totals all balances.
// With no concurrent transfers in flight the total equals the sum of opening balances.
func (s *AccountService) Summary(ctx context.Context) (*Summary, error) {
	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return &Summary{
		TotalBalance: domain.TotalBalance(accounts),
		AccountCount: len(accounts),
	}, nil
}

// Open provisions a new account with initialBalance
func (s *AccountService) Open(ctx context.Context, initialBalance decimal.Decimal) (*domain.Account, error) {
	account := domain.NewAccount(initialBalance)
	if err := account.Validate(); err != nil {
		return nil, err
	}

	if err := s.AccountRepo.Create(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}
