package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/modules/review"
)

// ReviewJob runs the daily tier escalation review on the primary book
type ReviewJob struct {
	log       zerolog.Logger
	escalator *review.Escalator
}

// NewReviewJob creates a new review job
func NewReviewJob(escalator *review.Escalator, log zerolog.Logger) *ReviewJob {
	return &ReviewJob{
		log:       log.With().Str("job", "review").Logger(),
		escalator: escalator,
	}
}

// Name returns the job name
func (j *ReviewJob) Name() string {
	return "tier_review"
}

// Run executes the review pass
func (j *ReviewJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := j.escalator.Run(ctx, domain.ScenarioLive)
	if err != nil {
		return err
	}

	j.log.Info().
		Int("reviewed", result.Reviewed).
		Int("escalated", result.Escalated).
		Int("failed", result.Failed).
		Msg("Tier review completed")

	return nil
}
