package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"

	"prestige_server/logging"
	"prestige_server/models"
)

// errVersionConflict marks a lost compare-and-swap; the append is retried.
var errVersionConflict = errors.New("preference record modified concurrently")

// DynamoPreferenceStore keeps one item per profile holding its ordered
// preference list. Appends are compare-and-swap on the item's version.
type DynamoPreferenceStore struct {
	Dynamo     *DynamoService
	Table      string
	MaxRetries int
	now        func() time.Time
}

var _ PreferenceStore = (*DynamoPreferenceStore)(nil)

func NewDynamoPreferenceStore(dynamo *DynamoService, table string, maxRetries int) *DynamoPreferenceStore {
	if table == "" {
		table = models.PreferencesTable
	}
	return &DynamoPreferenceStore{Dynamo: dynamo, Table: table, MaxRetries: maxRetries, now: time.Now}
}

func profileKey(profileID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: models.ProfileKey(profileID)},
	}
}

func (s *DynamoPreferenceStore) RegisterProfile(ctx context.Context, profileID string) (bool, error) {
	now := s.now().UTC().Format(time.RFC3339)
	record := models.PreferenceRecord{
		PK:          models.ProfileKey(profileID),
		ProfileID:   profileID,
		Preferences: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.Dynamo.PutItem(ctx, s.Table, record, "attribute_not_exists(PK)")
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	logging.Debug().Str("profile_id", profileID).Msg("✅ Profile registered")
	return true, nil
}

func (s *DynamoPreferenceStore) GetPreferences(ctx context.Context, profileID string) (*models.PreferenceRecord, error) {
	item, err := s.Dynamo.GetItem(ctx, s.Table, profileKey(profileID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("profile %s: %w", profileID, models.ErrNotFound)
		}
		return nil, err
	}
	var record models.PreferenceRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preference record: %w", err)
	}
	if record.Preferences == nil {
		record.Preferences = []string{}
	}
	return &record, nil
}

// AppendPreference reads the actor's item and, when targetID is absent, writes
// the extended list conditioned on the version it read. A lost race re-reads
// and re-checks, so concurrent appends of the same target add it once.
func (s *DynamoPreferenceStore) AppendPreference(ctx context.Context, actorID, targetID string) (models.AppendResult, error) {
	if _, err := s.Dynamo.GetItem(ctx, s.Table, profileKey(targetID)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.AppendResult{}, fmt.Errorf("target %s: %w", targetID, models.ErrNotFound)
		}
		return models.AppendResult{}, err
	}

	var (
		result   models.AppendResult
		attempts int
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(backoff.WithInitialInterval(10*time.Millisecond)), uint64(s.MaxRetries)),
		ctx,
	)
	err := backoff.Retry(func() error {
		attempts++
		record, err := s.GetPreferences(ctx, actorID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return backoff.Permanent(fmt.Errorf("actor %s: %w", actorID, models.ErrNotFound))
			}
			return backoff.Permanent(err)
		}
		if record.Contains(targetID) {
			result = models.AppendResult{Length: len(record.Preferences)}
			return nil
		}

		_, err = s.Dynamo.UpdateItem(ctx, s.Table, profileKey(actorID),
			"SET preferences = list_append(if_not_exists(preferences, :empty), :target), version = :next, updatedAt = :now",
			"version = :expected",
			map[string]types.AttributeValue{
				":empty":    &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
				":target":   &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: targetID}}},
				":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(record.Version, 10)},
				":next":     &types.AttributeValueMemberN{Value: strconv.FormatInt(record.Version+1, 10)},
				":now":      &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
			},
			nil,
		)
		if isConditionFailed(err) {
			logging.Debug().Str("actor_id", actorID).Int("attempt", attempts).Msg("🔁 Version conflict, retrying append")
			return errVersionConflict
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		result = models.AppendResult{Length: len(record.Preferences) + 1, Appended: true}
		return nil
	}, policy)
	if err != nil {
		if errors.Is(err, errVersionConflict) {
			return models.AppendResult{}, fmt.Errorf("failed to append preference after %d attempts: %w", attempts, err)
		}
		return models.AppendResult{}, err
	}
	return result, nil
}

// Snapshot scans the table with consistent reads. A scan is not a point-in-time
// read; appends landing mid-scan may or may not be included.
func (s *DynamoPreferenceStore) Snapshot(ctx context.Context) (map[string][]string, error) {
	items, err := s.Dynamo.ScanAll(ctx, s.Table)
	if err != nil {
		return nil, err
	}
	prefs := make(map[string][]string, len(items))
	for _, item := range items {
		var record models.PreferenceRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal preference record: %w", err)
		}
		if record.ProfileID == "" {
			continue
		}
		prefs[record.ProfileID] = append([]string{}, record.Preferences...)
	}
	return prefs, nil
}
