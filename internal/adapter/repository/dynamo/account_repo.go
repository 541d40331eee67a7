package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/transfer-engine/internal/domain"
)

const (
	attrID      = "id"
	attrBalance = "balance"
	attrVersion = "version"
)

// accountRepository implements domain.AccountRepository on a DynamoDB table.
// Every item carries a version that TransactWriteItems conditions on.
type accountRepository struct {
	client API
	table  string
}

// NewAccountRepository creates a new account repository backed by table
func NewAccountRepository(client API, table string) domain.AccountRepository {
	return &accountRepository{client: client, table: table}
}

// item is the decoded form of a stored account
type item struct {
	account *domain.Account
	version int64
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	it, err := r.getItem(ctx, id)
	if err != nil {
		return nil, err
	}
	return it.account, nil
}

// List retrieves every account ordered by ID.
// DynamoDB scans are not point-in-time, so concurrent commits may be visible
// for some pages only.
func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	paginator := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:      aws.String(r.table),
		ConsistentRead: aws.Bool(true),
	})

	accounts := []*domain.Account{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accounts: %w", err)
		}
		for _, raw := range page.Items {
			it, err := decodeItem(raw)
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, it.account)
		}
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].ID.String() < accounts[j].ID.String()
	})
	return accounts, nil
}

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item: map[string]types.AttributeValue{
			attrID:      &types.AttributeValueMemberS{Value: account.ID.String()},
			attrBalance: &types.AttributeValueMemberN{Value: account.Balance.String()},
			attrVersion: &types.AttributeValueMemberN{Value: "1"},
		},
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("failed to create account %s: %w", account.ID, domain.ErrAccountAlreadyExists)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// InTransaction runs fn against consistent reads and commits its writes with a
// single TransactWriteItems call conditioned on every version read.
// A failed condition or a competing transaction is reported as domain.ErrConflict.
func (r *accountRepository) InTransaction(ctx context.Context, fn func(ctx context.Context, tx domain.AccountTx) error) error {
	tx := &accountTx{
		repo:   r,
		reads:  make(map[uuid.UUID]int64),
		writes: make(map[uuid.UUID]decimal.Decimal),
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if len(tx.writes) == 0 {
		return nil
	}

	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: r.buildTransactItems(tx),
	})
	if err != nil {
		return classifyTransactError(err)
	}

	return nil
}

// buildTransactItems turns the write set into conditional updates and the
// remaining read set into condition checks
func (r *accountRepository) buildTransactItems(tx *accountTx) []types.TransactWriteItem {
	ids := make([]uuid.UUID, 0, len(tx.reads))
	for id := range tx.reads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var items []types.TransactWriteItem
	for _, id := range ids {
		version := tx.reads[id]
		key := map[string]types.AttributeValue{
			attrID: &types.AttributeValueMemberS{Value: id.String()},
		}

		if version == 0 {
			items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
				TableName:           aws.String(r.table),
				Key:                 key,
				ConditionExpression: aws.String("attribute_not_exists(id)"),
			}})
			continue
		}

		versionValue := &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)}
		balance, written := tx.writes[id]
		if !written {
			items = append(items, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
				TableName:                 aws.String(r.table),
				Key:                       key,
				ConditionExpression:       aws.String("version = :version"),
				ExpressionAttributeValues: map[string]types.AttributeValue{":version": versionValue},
			}})
			continue
		}

		items = append(items, types.TransactWriteItem{Update: &types.Update{
			TableName:           aws.String(r.table),
			Key:                 key,
			UpdateExpression:    aws.String("SET balance = :balance, version = version + :one"),
			ConditionExpression: aws.String("version = :version"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":balance": &types.AttributeValueMemberN{Value: balance.String()},
				":one":     &types.AttributeValueMemberN{Value: "1"},
				":version": versionValue,
			},
		}})
	}

	return items
}

func classifyTransactError(err error) error {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return fmt.Errorf("%w: %w", domain.ErrConflict, err)
			}
		}
		return fmt.Errorf("transaction canceled: %w", err)
	}

	var conflict *types.TransactionConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}

	return fmt.Errorf("failed to commit transaction: %w", err)
}

func (r *accountRepository) getItem(ctx context.Context, id uuid.UUID) (*item, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			attrID: &types.AttributeValueMemberS{Value: id.String()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, domain.NewAccountNotFoundError(id)
	}
	return decodeItem(out.Item)
}

func decodeItem(raw map[string]types.AttributeValue) (*item, error) {
	idAttr, ok := raw[attrID].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("account item is missing %q", attrID)
	}
	id, err := uuid.Parse(idAttr.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account id %q: %w", idAttr.Value, err)
	}

	balanceAttr, ok := raw[attrBalance].(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("account %s is missing %q", id, attrBalance)
	}
	balance, err := decimal.NewFromString(balanceAttr.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance of account %s: %w", id, err)
	}

	var version int64 = 1
	if versionAttr, ok := raw[attrVersion].(*types.AttributeValueMemberN); ok {
		version, err = strconv.ParseInt(versionAttr.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse version of account %s: %w", id, err)
		}
	}

	return &item{account: &domain.Account{ID: id, Balance: balance}, version: version}, nil
}

// accountTx records the version of every item read and buffers writes
type accountTx struct {
	repo   *accountRepository
	reads  map[uuid.UUID]int64
	writes map[uuid.UUID]decimal.Decimal
}

func (t *accountTx) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if balance, ok := t.writes[id]; ok {
		return &domain.Account{ID: id, Balance: balance}, nil
	}

	it, err := t.repo.getItem(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	var version int64
	if it != nil {
		version = it.version
	}
	if prev, seen := t.reads[id]; seen && prev != version {
		return nil, fmt.Errorf("%w: account %s changed during the unit of work", domain.ErrConflict, id)
	}
	t.reads[id] = version

	if err != nil {
		return nil, err
	}
	return it.account, nil
}

func (t *accountTx) Save(ctx context.Context, accounts ...*domain.Account) error {
	for _, account := range accounts {
		if err := account.Validate(); err != nil {
			return fmt.Errorf("failed to save account %s: %w", account.ID, err)
		}
	}

	for _, account := range accounts {
		version, seen := t.reads[account.ID]
		if !seen {
			if _, err := t.GetByID(ctx, account.ID); err != nil {
				return err
			}
			version = t.reads[account.ID]
		}
		if version == 0 {
			return domain.NewAccountNotFoundError(account.ID)
		}
		t.writes[account.ID] = account.Balance
	}
	return nil
}
