package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"prestige_server/logging"
	"prestige_server/models"
)

// DynamoMatchStore writes one item per matched profile, keyed by the run, and
// a pointer item in the runs table naming the committed run. Records of a run
// are invisible to GetMatch until the pointer names that run.
type DynamoMatchStore struct {
	Dynamo    *DynamoService
	Table     string
	RunsTable string
}

var _ MatchStore = (*DynamoMatchStore)(nil)

func NewDynamoMatchStore(dynamo *DynamoService, table, runsTable string) *DynamoMatchStore {
	if table == "" {
		table = models.MatchesTable
	}
	if runsTable == "" {
		runsTable = models.MatchRunsTable
	}
	return &DynamoMatchStore{Dynamo: dynamo, Table: table, RunsTable: runsTable}
}

// PublishMatches commits records, the run item and the pointer in one
// transaction when they fit. Larger runs write the records first; they stay
// hidden until the pointer flips in a final transaction.
func (s *DynamoMatchStore) PublishMatches(ctx context.Context, run *models.MatchRun, records []models.MatchRecord) error {
	publishedAt := run.FinishedAt.UTC().Format(models.MatchTimeLayout)

	commit, err := s.commitItems(run, publishedAt)
	if err != nil {
		return err
	}

	if len(records)+len(commit) <= maxTransactWriteSize {
		items := make([]types.TransactWriteItem, 0, len(records)+len(commit))
		for _, record := range records {
			av, err := attributevalue.MarshalMap(record)
			if err != nil {
				return fmt.Errorf("failed to marshal match record: %w", err)
			}
			items = append(items, types.TransactWriteItem{Put: &types.Put{TableName: aws.String(s.Table), Item: av}})
		}
		items = append(items, commit...)
		if err := s.Dynamo.TransactWriteItems(ctx, items); err != nil {
			return err
		}
		logging.Ctx(ctx).Info().Int("records", len(records)).Msg("✅ Matches committed in one transaction")
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(records))
	for _, record := range records {
		av, err := attributevalue.MarshalMap(record)
		if err != nil {
			return fmt.Errorf("failed to marshal match record: %w", err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}
	if err := s.Dynamo.BatchWriteItems(ctx, s.Table, requests); err != nil {
		return fmt.Errorf("failed to stage match records: %w", err)
	}
	if err := s.Dynamo.TransactWriteItems(ctx, commit); err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Int("records", len(records)).Msg("✅ Matches staged and committed")
	return nil
}

// commitItems builds the run item and the pointer flip. The pointer only moves
// forward in time.
func (s *DynamoMatchStore) commitItems(run *models.MatchRun, publishedAt string) ([]types.TransactWriteItem, error) {
	committed := *run
	committed.Status = models.RunStatusCommitted
	runItem, err := attributevalue.MarshalMap(committed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match run: %w", err)
	}
	pointer, err := attributevalue.MarshalMap(models.RunPointer{
		RunID:        models.CurrentRunID,
		CurrentRunID: run.RunID,
		PublishedAt:  publishedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run pointer: %w", err)
	}
	return []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(s.RunsTable),
			Item:                runItem,
			ConditionExpression: aws.String("attribute_not_exists(runId)"),
		}},
		{Put: &types.Put{
			TableName:           aws.String(s.RunsTable),
			Item:                pointer,
			ConditionExpression: aws.String("attribute_not_exists(publishedAt) OR publishedAt < :publishedAt"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":publishedAt": &types.AttributeValueMemberS{Value: publishedAt},
			},
		}},
	}, nil
}

// CurrentRun returns the pointer naming the committed run.
func (s *DynamoMatchStore) CurrentRun(ctx context.Context) (*models.RunPointer, error) {
	item, err := s.Dynamo.GetItem(ctx, s.RunsTable, map[string]types.AttributeValue{
		"runId": &types.AttributeValueMemberS{Value: models.CurrentRunID},
	})
	if err != nil {
		return nil, err
	}
	var pointer models.RunPointer
	if err := attributevalue.UnmarshalMap(item, &pointer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run pointer: %w", err)
	}
	return &pointer, nil
}

func (s *DynamoMatchStore) GetMatch(ctx context.Context, profileID string) (*models.MatchRecord, error) {
	pointer, err := s.CurrentRun(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("no published run: %w", models.ErrNotFound)
		}
		return nil, err
	}

	item, err := s.Dynamo.GetItem(ctx, s.Table, map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: models.ProfileKey(profileID)},
		"SK": &types.AttributeValueMemberS{Value: models.MatchSortKey(pointer.PublishedAt, pointer.CurrentRunID)},
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("match for %s: %w", profileID, models.ErrNotFound)
		}
		return nil, err
	}
	var record models.MatchRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match record: %w", err)
	}
	return &record, nil
}
