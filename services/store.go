package services

import (
	"context"

	"prestige_server/models"
)

// PreferenceStore persists preference sequences, one per profile.
type PreferenceStore interface {
	// RegisterProfile creates an empty sequence for profileID. It reports false
	// when the profile already existed.
	RegisterProfile(ctx context.Context, profileID string) (bool, error)
	// AppendPreference appends targetID to actorID's sequence unless present.
	// The read-modify-write is atomic per actor. Unknown actor or target
	// yields models.ErrNotFound.
	AppendPreference(ctx context.Context, actorID, targetID string) (models.AppendResult, error)
	GetPreferences(ctx context.Context, profileID string) (*models.PreferenceRecord, error)
	// Snapshot returns every profile's sequence as of one read.
	Snapshot(ctx context.Context) (map[string][]string, error)
}

// MatchStore persists the output of matching runs.
type MatchStore interface {
	// PublishMatches makes records visible all at once, superseding the
	// previously published run, or leaves the store untouched on error.
	PublishMatches(ctx context.Context, run *models.MatchRun, records []models.MatchRecord) error
	// GetMatch returns profileID's record in the current run, or models.ErrNotFound.
	GetMatch(ctx context.Context, profileID string) (*models.MatchRecord, error)
}
