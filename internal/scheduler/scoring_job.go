package scheduler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/modules/signals"
)

// staleSignalAgeDays is how long a signal may sit unallocated before it
// expires out of the candidate pool.
const staleSignalAgeDays = 14

// ScoringJob scores the overnight signal intake and expires stale
// candidates. Runs after ingest, before allocation.
type ScoringJob struct {
	log     zerolog.Logger
	service *signals.ScoringService
}

// NewScoringJob creates a new scoring job
func NewScoringJob(service *signals.ScoringService, log zerolog.Logger) *ScoringJob {
	return &ScoringJob{
		log:     log.With().Str("job", "scoring").Logger(),
		service: service,
	}
}

// Name returns the job name
func (j *ScoringJob) Name() string {
	return "signal_scoring"
}

// Run executes the scoring pass
func (j *ScoringJob) Run() error {
	start := time.Now()

	result, err := j.service.ScorePending()
	if err != nil {
		return err
	}

	expired, err := j.service.ExpireStale(staleSignalAgeDays)
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to expire stale signals")
	}

	j.log.Info().
		Int("scored", result.Scored).
		Int("rejected", result.Rejected).
		Int64("expired", expired).
		Dur("duration", time.Since(start)).
		Msg("Signal scoring completed")

	return nil
}
