package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/modules/signals"
)

// IngestJob pulls fresh insider and congressional filings every morning
// before the market opens.
type IngestJob struct {
	log     zerolog.Logger
	service *signals.IngestService
}

// NewIngestJob creates a new ingest job
func NewIngestJob(service *signals.IngestService, log zerolog.Logger) *IngestJob {
	return &IngestJob{
		log:     log.With().Str("job", "ingest").Logger(),
		service: service,
	}
}

// Name returns the job name
func (j *IngestJob) Name() string {
	return "signal_ingest"
}

// Run executes the ingest pass
func (j *IngestJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	result, err := j.service.IngestAll(ctx)
	if err != nil {
		return err
	}

	j.log.Info().
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("rejected", result.Rejected).
		Dur("duration", time.Since(start)).
		Msg("Signal ingest completed")

	return nil
}
