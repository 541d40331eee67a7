package dynamo

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory API that understands the expressions the
// repository issues
type fakeDynamo struct {
	mu           sync.Mutex
	tableExists  bool
	items        map[string]map[string]types.AttributeValue
	transactions int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		tableExists: true,
		items:       make(map[string]map[string]types.AttributeValue),
	}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key[attrID].(*types.AttributeValueMemberS).Value
}

func versionOf(it map[string]types.AttributeValue) string {
	return it[attrVersion].(*types.AttributeValueMemberN).Value
}

// bump simulates a write committed by another process
func (f *fakeDynamo) bump(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := f.items[id]
	v, _ := strconv.Atoi(versionOf(it))
	it[attrVersion] = &types.AttributeValueMemberN{Value: strconv.Itoa(v + 1)}
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	it, ok := f.items[keyOf(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	copied := make(map[string]types.AttributeValue, len(it))
	for k, v := range it {
		copied[k] = v
	}
	return &dynamodb.GetItemOutput{Item: copied}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := keyOf(params.Item)
	if _, exists := f.items[id]; exists && aws.ToString(params.ConditionExpression) == "attribute_not_exists(id)" {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.items[id] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &dynamodb.ScanOutput{}
	for _, it := range f.items {
		out.Items = append(out.Items, it)
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions++

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}

		var key map[string]types.AttributeValue
		var cond string
		var values map[string]types.AttributeValue
		switch {
		case ti.Update != nil:
			key, cond, values = ti.Update.Key, aws.ToString(ti.Update.ConditionExpression), ti.Update.ExpressionAttributeValues
		case ti.ConditionCheck != nil:
			key, cond, values = ti.ConditionCheck.Key, aws.ToString(ti.ConditionCheck.ConditionExpression), ti.ConditionCheck.ExpressionAttributeValues
		}

		it, exists := f.items[keyOf(key)]
		ok := true
		switch cond {
		case "attribute_not_exists(id)":
			ok = !exists
		case "version = :version":
			ok = exists && versionOf(it) == values[":version"].(*types.AttributeValueMemberN).Value
		}
		if !ok {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range params.TransactItems {
		if ti.Update == nil {
			continue
		}
		it := f.items[keyOf(ti.Update.Key)]
		v, _ := strconv.Atoi(versionOf(it))
		it[attrBalance] = ti.Update.ExpressionAttributeValues[":balance"]
		it[attrVersion] = &types.AttributeValueMemberN{Value: strconv.Itoa(v + 1)}
	}

	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.tableExists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   params.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tableExists = true
	return &dynamodb.CreateTableOutput{}, nil
}
