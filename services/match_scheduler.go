package services

import (
	"context"
	"errors"
	"time"

	"prestige_server/logging"
	"prestige_server/models"
)

// matchRunnerAPI is what the scheduler needs from MatchRunner.
type matchRunnerAPI interface {
	Run(ctx context.Context) (*models.MatchRun, error)
}

// MatchScheduler triggers a matching run every Interval. It is a suture
// service: Serve blocks until ctx is cancelled. Failed runs are logged and the
// next tick tries again from a fresh snapshot.
type MatchScheduler struct {
	Runner   matchRunnerAPI
	Interval time.Duration
}

func NewMatchScheduler(runner matchRunnerAPI, interval time.Duration) *MatchScheduler {
	return &MatchScheduler{Runner: runner, Interval: interval}
}

func (s *MatchScheduler) Serve(ctx context.Context) error {
	if s.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	logging.Info().Dur("interval", s.Interval).Msg("⏰ Match scheduler started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run, err := s.Runner.Run(ctx)
			switch {
			case errors.Is(err, models.ErrRunInProgress):
				logging.Info().Msg("⏳ Skipping scheduled run, another run is in progress")
			case err != nil:
				logging.Error().Err(err).Msg("❌ Scheduled matching run failed")
			default:
				logging.Info().Str("run_id", run.RunID).Int("pairs", run.Pairs).Msg("✅ Scheduled matching run published")
			}
		}
	}
}

func (s *MatchScheduler) String() string {
	return "match-scheduler"
}
