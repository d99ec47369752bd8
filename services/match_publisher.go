package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"prestige_server/logging"
	"prestige_server/models"
)

// MatchPublisher writes a run's matching to the Match Store as one atomic batch.
type MatchPublisher struct {
	Store MatchStore
	now   func() time.Time
}

func NewMatchPublisher(store MatchStore) *MatchPublisher {
	return &MatchPublisher{Store: store, now: time.Now}
}

// BuildMatchRecords expands a symmetric mapping into one record per matched
// profile, sorted by profile id.
func BuildMatchRecords(runID string, publishedAt time.Time, matched map[string]string) ([]models.MatchRecord, error) {
	stamp := publishedAt.UTC().Format(models.MatchTimeLayout)
	records := make([]models.MatchRecord, 0, len(matched))
	for profileID, partnerID := range matched {
		if profileID == partnerID {
			return nil, fmt.Errorf("profile %s matched with itself: %w", profileID, models.ErrInvalidArgument)
		}
		if matched[partnerID] != profileID {
			return nil, fmt.Errorf("match %s -> %s is not symmetric: %w", profileID, partnerID, models.ErrInvalidArgument)
		}
		records = append(records, models.MatchRecord{
			PK:        models.ProfileKey(profileID),
			SK:        models.MatchSortKey(stamp, runID),
			ProfileID: profileID,
			PartnerID: partnerID,
			RunID:     runID,
			MatchedAt: stamp,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ProfileID < records[j].ProfileID })
	return records, nil
}

// Publish stamps run with the publication time and commits matched. Either
// every record becomes visible or none does; on failure the caller should
// re-run from a fresh snapshot.
func (p *MatchPublisher) Publish(ctx context.Context, run *models.MatchRun, matched map[string]string) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("run id is required: %w", models.ErrInvalidArgument)
	}
	publishedAt := p.clock().UTC()
	records, err := BuildMatchRecords(run.RunID, publishedAt, matched)
	if err != nil {
		return err
	}

	run.FinishedAt = publishedAt
	run.Pairs = len(records) / 2
	if err := p.Store.PublishMatches(ctx, run, records); err != nil {
		logging.Ctx(ctx).Error().Err(err).Int("records", len(records)).Msg("❌ Failed to publish matches")
		return fmt.Errorf("%w: %w", models.ErrPublishFailed, err)
	}
	run.Status = models.RunStatusPublished
	logging.Ctx(ctx).Info().Int("pairs", run.Pairs).Msg("✅ Matches published")
	return nil
}

// GetMatch returns the published partner record for profileID.
func (p *MatchPublisher) GetMatch(ctx context.Context, profileID string) (*models.MatchRecord, error) {
	if profileID == "" {
		return nil, fmt.Errorf("profile id is required: %w", models.ErrInvalidArgument)
	}
	return p.Store.GetMatch(ctx, profileID)
}

func (p *MatchPublisher) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}
