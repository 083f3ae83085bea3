package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/modules/review"
)

// SweepJob runs the hourly position lifecycle sweep: stop breaches,
// round expiries and stagnation closes.
type SweepJob struct {
	log     zerolog.Logger
	sweeper *review.Sweeper
}

// NewSweepJob creates a new lifecycle sweep job
func NewSweepJob(sweeper *review.Sweeper, log zerolog.Logger) *SweepJob {
	return &SweepJob{
		log:     log.With().Str("job", "sweep").Logger(),
		sweeper: sweeper,
	}
}

// Name returns the job name
func (j *SweepJob) Name() string {
	return "lifecycle_sweep"
}

// Run executes the sweep
func (j *SweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err := j.sweeper.Run(ctx, domain.ScenarioLive, time.Now().UTC())
	return err
}
