package seeder

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
	"go.uber.org/zap"
)

// Fixed UUIDs for the demo accounts
var (
	DemoAccountA = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	DemoAccountB = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// DemoAccount defines an account to be seeded
type DemoAccount struct {
	ID      uuid.UUID
	Balance decimal.Decimal
}

// DemoAccounts returns the accounts created by Seed
func DemoAccounts() []DemoAccount {
	return []DemoAccount{
		{ID: DemoAccountA, Balance: decimal.NewFromInt(100)},
		{ID: DemoAccountB, Balance: decimal.NewFromInt(200)},
	}
}

// AccountSeeder handles seeding of demo accounts
type AccountSeeder struct {
	repo   domain.AccountRepository
	logger *zap.Logger
}

// NewAccountSeeder creates a new AccountSeeder instance
func NewAccountSeeder(repo domain.AccountRepository, logger *zap.Logger) *AccountSeeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountSeeder{
		repo:   repo,
		logger: logger,
	}
}

// Seed ensures every demo account exists.
// Existing accounts keep their current balance.
func (s *AccountSeeder) Seed(ctx context.Context) error {
	for _, demo := range DemoAccounts() {
		_, err := s.repo.GetByID(ctx, demo.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("failed to look up demo account %s: %w", demo.ID, err)
		}

		account := &domain.Account{
			ID:      demo.ID,
			Balance: demo.Balance,
		}

		err = s.repo.Create(ctx, account)
		// Another instance seeded it first
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to seed demo account %s: %w", demo.ID, err)
		}

		s.logger.Info("seeded demo account",
			zap.String("account_id", demo.ID.String()),
			zap.String("balance", demo.Balance.String()),
		)
	}

	return nil
}
