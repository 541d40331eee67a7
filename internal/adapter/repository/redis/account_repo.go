package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
)

const (
	accountKeyPrefix = "account:"
	// accountIndexKey is a set holding every account ID
	accountIndexKey = "accounts"
)

// stringGetter is satisfied by both *goredis.Client and *goredis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

func accountKey(id uuid.UUID) string {
	return accountKeyPrefix + id.String()
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// accountRepository implements domain.AccountRepository on Redis.
// Balances are stored as decimal strings under account:<id>.
type accountRepository struct {
	client *goredis.Client
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(client *goredis.Client) domain.AccountRepository {
	return &accountRepository{client: client}
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return getAccount(ctx, r.client, id)
}

// List retrieves every account ordered by ID.
// Balances are read with a single MGET so the result is one snapshot.
func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	members, err := r.client.SMembers(ctx, accountIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list account ids: %w", err)
	}
	if len(members) == 0 {
		return []*domain.Account{}, nil
	}
	sort.Strings(members)

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = accountKeyPrefix + m
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account balances: %w", err)
	}

	accounts := make([]*domain.Account, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		id, err := uuid.Parse(members[i])
		if err != nil {
			return nil, fmt.Errorf("failed to parse account id %q: %w", members[i], err)
		}
		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance of account %s: %w", id, err)
		}

		accounts = append(accounts, &domain.Account{ID: id, Balance: balance})
	}

	return accounts, nil
}

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	var created *goredis.BoolCmd
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		created = pipe.SetNX(ctx, accountKey(account.ID), account.Balance.String(), 0)
		pipe.SAdd(ctx, accountIndexKey, account.ID.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if !created.Val() {
		return fmt.Errorf("failed to create account %s: %w", account.ID, domain.ErrAccountAlreadyExists)
	}

	return nil
}

// InTransaction runs fn with optimistic locking: every key read is WATCHed and
// staged writes are applied in one MULTI/EXEC. An aborted EXEC is reported as
// domain.ErrConflict.
func (r *accountRepository) InTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.AccountTx) error) error {
	err := r.client.Watch(ctx, func(rtx *goredis.Tx) error {
		tx := &accountTx{
			tx:     rtx,
			reads:  make(map[uuid.UUID]bool),
			writes: make(map[uuid.UUID]decimal.Decimal),
		}

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if len(tx.writes) == 0 {
			return nil
		}

		_, err := rtx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for id, balance := range tx.writes {
				pipe.Set(ctx, accountKey(id), balance.String(), 0)
			}
			return nil
		})
		return err
	})

	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("%w: watched account changed before commit", domain.ErrConflict)
	}
	return err
}

// accountTx stages writes on top of a WATCHing connection
type accountTx struct {
	tx     *goredis.Tx
	reads  map[uuid.UUID]bool
	writes map[uuid.UUID]decimal.Decimal
}

func (t *accountTx) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if balance, ok := t.writes[id]; ok {
		return &domain.Account{ID: id, Balance: balance}, nil
	}

	if err := t.watch(ctx, id); err != nil {
		return nil, err
	}
	return getAccount(ctx, t.tx, id)
}

func (t *accountTx) Save(ctx context.Context, accounts ...*domain.Account) error {
	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return fmt.Errorf("failed to save account %s: %w", account.ID, err)
		}
	}

	for _, account := range accounts {
		// A blind write still has to target an existing account
		if !t.reads[account.ID] {
			if _, err := t.GetByID(ctx, account.ID); err != nil {
				return err
			}
		}
		t.writes[account.ID] = account.Balance
	}
	return nil
}

func (t *accountTx) watch(ctx context.Context, id uuid.UUID) error {
	if t.reads[id] {
		return nil
	}
	if err := t.tx.Watch(ctx, accountKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to watch account %s: %w", id, err)
	}
	t.reads[id] = true
	return nil
}

func getAccount(ctx context.Context, c stringGetter, id uuid.UUID) (*domain.Account, error) {
	raw, err := c.Get(ctx, accountKey(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.NewAccountNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance of account %s: %w", id, err)
	}

	return &domain.Account{ID: id, Balance: balance}, nil
}
