package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"prestige_server/models"
)

type fakeItem = map[string]types.AttributeValue

// fakeDynamo is an in-memory DynamoAPI that understands the condition and
// update expressions issued by the stores in this package.
type fakeDynamo struct {
	mu     sync.Mutex
	keys   map[string][]string
	tables map[string]map[string]fakeItem

	scanPageSize int
	// beforeUpdate runs once, unlocked, before the next UpdateItem applies.
	beforeUpdate func()
	// unprocessed bounces the last request of that many BatchWriteItem calls.
	unprocessed int
	transactErr error

	batchCalls    int
	transactCalls int
	transactSizes []int
}

var _ DynamoAPI = (*fakeDynamo)(nil)

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		keys: map[string][]string{
			models.PreferencesTable: {"PK"},
			models.MatchesTable:     {"PK", "SK"},
			models.MatchRunsTable:   {"runId"},
		},
		tables:       map[string]map[string]fakeItem{},
		scanPageSize: 2,
	}
}

func (f *fakeDynamo) keyOf(table string, item fakeItem) string {
	parts := make([]string, 0, 2)
	for _, name := range f.keys[table] {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			parts = append(parts, v.Value)
		}
	}
	return strings.Join(parts, "|")
}

func (f *fakeDynamo) table(name string) map[string]fakeItem {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]fakeItem{}
		f.tables[name] = t
	}
	return t
}

func copyItem(item fakeItem) fakeItem {
	if item == nil {
		return nil
	}
	out := make(fakeItem, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *fakeDynamo) conditionHolds(cond *string, existing fakeItem, values fakeItem) bool {
	if cond == nil {
		return true
	}
	switch expr := aws.ToString(cond); {
	case strings.HasPrefix(expr, "attribute_not_exists(publishedAt)"):
		if existing == nil {
			return true
		}
		current := existing["publishedAt"].(*types.AttributeValueMemberS).Value
		return current < values[":publishedAt"].(*types.AttributeValueMemberS).Value
	case strings.HasPrefix(expr, "attribute_not_exists("):
		return existing == nil
	case expr == "version = :expected":
		if existing == nil {
			return false
		}
		return existing["version"].(*types.AttributeValueMemberN).Value == values[":expected"].(*types.AttributeValueMemberN).Value
	default:
		panic("fakeDynamo: unsupported condition " + expr)
	}
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	return &dynamodb.GetItemOutput{Item: copyItem(f.table(table)[f.keyOf(table, in.Key)])}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	key := f.keyOf(table, in.Item)
	if !f.conditionHolds(in.ConditionExpression, f.table(table)[key], in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	f.table(table)[key] = copyItem(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// UpdateItem supports the preference append issued by DynamoPreferenceStore.
func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	hook := f.beforeUpdate
	f.beforeUpdate = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	key := f.keyOf(table, in.Key)
	existing := f.table(table)[key]
	if !f.conditionHolds(in.ConditionExpression, existing, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}

	updated := copyItem(existing)
	var list []types.AttributeValue
	if l, ok := existing["preferences"].(*types.AttributeValueMemberL); ok {
		list = append(list, l.Value...)
	}
	list = append(list, in.ExpressionAttributeValues[":target"].(*types.AttributeValueMemberL).Value...)
	updated["preferences"] = &types.AttributeValueMemberL{Value: list}
	updated["version"] = in.ExpressionAttributeValues[":next"]
	updated["updatedAt"] = in.ExpressionAttributeValues[":now"]
	f.table(table)[key] = updated
	return &dynamodb.UpdateItemOutput{Attributes: copyItem(updated)}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table := aws.ToString(in.TableName)
	rows := f.table(table)
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := f.keyOf(table, in.ExclusiveStartKey)
		start = sort.SearchStrings(keys, after) + 1
	}
	end := min(start+f.scanPageSize, len(keys))

	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, copyItem(rows[k]))
	}
	if end < len(keys) {
		last := rows[keys[end-1]]
		out.LastEvaluatedKey = fakeItem{}
		for _, name := range f.keys[table] {
			out.LastEvaluatedKey[name] = last[name]
		}
	}
	return out, nil
}

func (f *fakeDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := &dynamodb.BatchWriteItemOutput{}
	for table, requests := range in.RequestItems {
		if f.unprocessed > 0 && len(requests) > 0 {
			f.unprocessed--
			out.UnprocessedItems = map[string][]types.WriteRequest{table: requests[len(requests)-1:]}
			requests = requests[:len(requests)-1]
		}
		for _, r := range requests {
			if r.PutRequest == nil {
				return nil, errors.New("fakeDynamo: only put requests are supported")
			}
			f.table(table)[f.keyOf(table, r.PutRequest.Item)] = copyItem(r.PutRequest.Item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++
	f.transactSizes = append(f.transactSizes, len(in.TransactItems))
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	for _, item := range in.TransactItems {
		put := item.Put
		table := aws.ToString(put.TableName)
		if !f.conditionHolds(put.ConditionExpression, f.table(table)[f.keyOf(table, put.Item)], put.ExpressionAttributeValues) {
			return nil, &types.TransactionCanceledException{Message: aws.String("conditional check failed")}
		}
	}
	for _, item := range in.TransactItems {
		table := aws.ToString(item.Put.TableName)
		f.table(table)[f.keyOf(table, item.Put.Item)] = copyItem(item.Put.Item)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}
