package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"prestige_server/logging"
	"prestige_server/models"
)

var tracer = otel.Tracer("prestige_server/services")

// PreferenceService turns positive swipes into preference appends.
type PreferenceService struct {
	Store PreferenceStore
}

func NewPreferenceService(store PreferenceStore) *PreferenceService {
	return &PreferenceService{Store: store}
}

// RecordPreference appends targetID to actorID's sequence if absent. Repeating
// a call is a no-op that reports the unchanged length. It never starts a
// matching run.
func (s *PreferenceService) RecordPreference(ctx context.Context, actorID, targetID string) (models.AppendResult, error) {
	ctx, span := tracer.Start(ctx, "RecordPreference")
	defer span.End()
	span.SetAttributes(attribute.String("actor_id", actorID), attribute.String("target_id", targetID))

	if actorID == "" || targetID == "" {
		preferencesRecorded.WithLabelValues(resultInvalid).Inc()
		return models.AppendResult{}, fmt.Errorf("actor and target are required: %w", models.ErrInvalidArgument)
	}
	if actorID == targetID {
		preferencesRecorded.WithLabelValues(resultInvalid).Inc()
		return models.AppendResult{}, fmt.Errorf("profile %s cannot prefer itself: %w", actorID, models.ErrInvalidArgument)
	}

	result, err := s.Store.AppendPreference(ctx, actorID, targetID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, models.ErrNotFound) {
			preferencesRecorded.WithLabelValues(resultNotFound).Inc()
			return models.AppendResult{}, err
		}
		span.SetStatus(codes.Error, "append failed")
		preferencesRecorded.WithLabelValues(resultError).Inc()
		logging.Error().Err(err).Str("actor_id", actorID).Str("target_id", targetID).Msg("❌ Failed to record preference")
		return models.AppendResult{}, fmt.Errorf("failed to record preference: %w", err)
	}

	span.SetAttributes(attribute.Int("length", result.Length), attribute.Bool("appended", result.Appended))
	if result.Appended {
		preferencesRecorded.WithLabelValues(resultAppended).Inc()
		logging.Debug().Str("actor_id", actorID).Str("target_id", targetID).Int("length", result.Length).Msg("✅ Preference appended")
	} else {
		preferencesRecorded.WithLabelValues(resultDuplicate).Inc()
	}
	return result, nil
}

// RegisterProfile makes profileID a valid actor and target. Idempotent.
func (s *PreferenceService) RegisterProfile(ctx context.Context, profileID string) (bool, error) {
	if profileID == "" {
		return false, fmt.Errorf("profile id is required: %w", models.ErrInvalidArgument)
	}
	created, err := s.Store.RegisterProfile(ctx, profileID)
	if err != nil {
		return false, fmt.Errorf("failed to register profile: %w", err)
	}
	if created {
		logging.Info().Str("profile_id", profileID).Msg("✅ Profile registered")
	}
	return created, nil
}

func (s *PreferenceService) GetPreferences(ctx context.Context, profileID string) (*models.PreferenceRecord, error) {
	if profileID == "" {
		return nil, fmt.Errorf("profile id is required: %w", models.ErrInvalidArgument)
	}
	return s.Store.GetPreferences(ctx, profileID)
}
