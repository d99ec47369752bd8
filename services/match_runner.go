package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"prestige_server/logging"
	"prestige_server/matching"
	"prestige_server/models"
)

// RunNotifier announces published runs. Delivery is best effort.
type RunNotifier interface {
	NotifyRunCompleted(ctx context.Context, event models.MatchRunCompletedEvent) error
}

// MatchRunner executes one matching run end to end: snapshot, engine,
// publication. At most one run is in flight; overlapping requests are rejected
// with models.ErrRunInProgress rather than queued.
type MatchRunner struct {
	Preferences PreferenceStore
	Publisher   *MatchPublisher
	Options     matching.Options
	// Timeout bounds a whole run when > 0.
	Timeout time.Duration

	// Optional collaborators.
	Lock     RunLock
	Archiver *SnapshotArchiver
	Notifier RunNotifier

	mu  sync.Mutex
	now func() time.Time
}

func NewMatchRunner(preferences PreferenceStore, publisher *MatchPublisher, opts matching.Options) *MatchRunner {
	return &MatchRunner{Preferences: preferences, Publisher: publisher, Options: opts, now: time.Now}
}

// Run performs a matching run. The returned run describes the outcome even
// when err is non-nil, except for rejected runs.
func (r *MatchRunner) Run(ctx context.Context) (*models.MatchRun, error) {
	if !r.mu.TryLock() {
		matchRuns.WithLabelValues(models.RunStatusRejected).Inc()
		return nil, models.ErrRunInProgress
	}
	defer r.mu.Unlock()

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)

	if r.Lock != nil {
		token, acquired, err := r.Lock.Acquire(ctx)
		if err != nil {
			matchRuns.WithLabelValues(models.RunStatusFailed).Inc()
			return nil, err
		}
		if !acquired {
			matchRuns.WithLabelValues(models.RunStatusRejected).Inc()
			logging.Ctx(ctx).Info().Msg("⏳ Matching run held by another instance")
			return nil, models.ErrRunInProgress
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.Lock.Release(releaseCtx, token); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("⚠️ Failed to release run lock")
			}
		}()
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "MatchRun")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	run := &models.MatchRun{RunID: runID, StartedAt: r.clock().UTC()}
	err := r.execute(ctx, run)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, run.Status)
	}
	r.record(ctx, run, err)
	return run, err
}

func (r *MatchRunner) execute(ctx context.Context, run *models.MatchRun) error {
	prefs, err := r.Preferences.Snapshot(ctx)
	if err != nil {
		run.Status = statusForCancel(ctx, models.RunStatusFailed)
		return fmt.Errorf("%w: %w", models.ErrSnapshotRead, err)
	}
	snapshot := matching.NewSnapshot(prefs)
	run.Profiles = snapshot.Len()
	if dropped := snapshot.Dropped(); dropped > 0 {
		logging.Ctx(ctx).Warn().Int("dropped", dropped).Msg("⚠️ Ignored self, duplicate or unknown preference entries")
	}

	result, err := matching.Run(ctx, snapshot, r.Options)
	if errors.Is(err, models.ErrDidNotConverge) {
		run.Status = models.RunStatusDidNotConverge
		r.archive(ctx, run, snapshot, err)
		return err
	}
	if err != nil {
		run.Status = models.RunStatusCancelled
		return err
	}
	run.Passes = result.Passes
	run.Displacements = result.Displacements
	run.Unmatched = len(result.Unmatched)

	// Nothing may be published once the caller has given up.
	if err := ctx.Err(); err != nil {
		run.Status = models.RunStatusCancelled
		return err
	}

	if err := r.Publisher.Publish(ctx, run, result.Matched); err != nil {
		run.Status = models.RunStatusFailed
		return err
	}
	run.Status = models.RunStatusPublished
	matchRunPasses.Observe(float64(result.Passes))
	matchedProfiles.Set(float64(len(result.Matched)))

	if r.Notifier != nil {
		event := models.MatchRunCompletedEvent{
			RunID:     run.RunID,
			Pairs:     run.Pairs,
			Unmatched: run.Unmatched,
			Passes:    run.Passes,
			At:        run.FinishedAt,
		}
		if err := r.Notifier.NotifyRunCompleted(ctx, event); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("⚠️ Failed to announce matching run")
		}
	}
	return nil
}

func (r *MatchRunner) archive(ctx context.Context, run *models.MatchRun, snapshot *matching.Snapshot, cause error) {
	if r.Archiver == nil {
		return
	}
	maxPasses := r.Options.MaxPasses
	if maxPasses <= 0 {
		maxPasses = matching.PassBound(snapshot)
	}
	key, err := r.Archiver.Archive(ctx, ArchivedSnapshot{
		RunID:       run.RunID,
		Reason:      cause.Error(),
		MaxPasses:   maxPasses,
		ArchivedAt:  r.clock().UTC(),
		Preferences: snapshot.Export(),
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("⚠️ Failed to archive snapshot")
		return
	}
	logging.Ctx(ctx).Info().Str("key", key).Msg("📦 Archived non-converging snapshot")
}

func (r *MatchRunner) record(ctx context.Context, run *models.MatchRun, err error) {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = r.clock().UTC()
	}
	elapsed := run.FinishedAt.Sub(run.StartedAt)
	matchRuns.WithLabelValues(run.Status).Inc()
	matchRunDuration.Observe(elapsed.Seconds())

	event := logging.Ctx(ctx).Info()
	if err != nil {
		event = logging.Ctx(ctx).Error().Err(err)
	}
	event.
		Str("status", run.Status).
		Int("profiles", run.Profiles).
		Int("pairs", run.Pairs).
		Int("unmatched", run.Unmatched).
		Int("passes", run.Passes).
		Int("displacements", run.Displacements).
		Dur("elapsed", elapsed).
		Msg("🏁 Matching run finished")
}

func (r *MatchRunner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func statusForCancel(ctx context.Context, fallback string) string {
	if ctx.Err() != nil {
		return models.RunStatusCancelled
	}
	return fallback
}
