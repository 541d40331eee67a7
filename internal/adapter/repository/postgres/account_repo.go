package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
)

// PostgreSQL error codes the repository translates
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, balance
		FROM accounts
		WHERE id = $1
	`
	return scanAccount(ctx, r.db, query, id)
}

// List retrieves every account ordered by ID
func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	query := `
		SELECT id, balance
		FROM accounts
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var account domain.Account
		var balanceStr string

		if err := rows.Scan(&account.ID, &balanceStr); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}

		balance, err := decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance: %w", err)
		}
		account.Balance = balance

		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (id, balance)
		VALUES ($1, $2)
	`

	if _, err := r.db.ExecContext(ctx, query, account.ID, account.Balance.String()); err != nil {
		return wrapError(err, "failed to create account")
	}

	return nil
}

// InTransaction runs fn inside a SERIALIZABLE transaction.
// Serialization failures and deadlocks are reported as domain.ErrConflict.
func (r *accountRepository) InTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.AccountTx) error) error {
	dbTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return wrapError(err, "failed to begin transaction")
	}
	defer dbTx.Rollback()

	if err := fn(ctx, &accountTx{tx: dbTx}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return wrapError(err, "failed to commit transaction")
	}

	return nil
}

// accountTx implements domain.AccountTx on top of *sql.Tx
type accountTx struct {
	tx *sql.Tx
}

func (t *accountTx) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, balance
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`
	return scanAccount(ctx, t.tx, query, id)
}

func (t *accountTx) Save(ctx context.Context, accounts ...*domain.Account) error {
	query := `
		UPDATE accounts
		SET balance = $2
		WHERE id = $1
	`

	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return fmt.Errorf("failed to save account %s: %w", account.ID, err)
		}

		result, err := t.tx.ExecContext(ctx, query, account.ID, account.Balance.String())
		if err != nil {
			return wrapError(err, "failed to update account balance")
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return domain.NewAccountNotFoundError(account.ID)
		}
	}

	return nil
}

func scanAccount(ctx context.Context, q queryer, query string, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	var balanceStr string

	err := q.QueryRowContext(ctx, query, id).Scan(&account.ID, &balanceStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewAccountNotFoundError(id)
		}
		return nil, wrapError(err, "failed to get account by ID")
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	account.Balance = balance

	return &account, nil
}

// wrapError attaches msg and translates PostgreSQL error codes into domain errors
func wrapError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %w", msg, domain.ErrConflict, err)
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", msg, domain.ErrAccountAlreadyExists)
		case codeCheckViolation:
			return fmt.Errorf("%s: %w", msg, domain.ErrNegativeBalance)
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}
