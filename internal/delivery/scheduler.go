package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Runner performs one delivery pass.
type Runner interface {
	DeliverMessages(ctx context.Context) (Stats, error)
}

// Scheduler runs a pass immediately and then once per interval. Passes never
// overlap: a pass that outlasts the interval delays the next one.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      zerolog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(runner Runner, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, log: log}
}

// Run blocks until ctx is cancelled, waiting for the running pass to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("delivery scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		// Pass errors are logged by the engine; the next tick retries.
		_, _ = s.runner.DeliverMessages(ctx)

		select {
		case <-ctx.Done():
			s.log.Info().Msg("delivery scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
