package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/modules/allocation"
)

// AllocationJob runs the daily allocation pass on the primary book.
// Skips weekends and market holidays.
type AllocationJob struct {
	log         zerolog.Logger
	allocator   *allocation.Allocator
	marketHours *MarketHoursService
}

// NewAllocationJob creates a new allocation job
func NewAllocationJob(allocator *allocation.Allocator, marketHours *MarketHoursService, log zerolog.Logger) *AllocationJob {
	return &AllocationJob{
		log:         log.With().Str("job", "allocation").Logger(),
		allocator:   allocator,
		marketHours: marketHours,
	}
}

// Name returns the job name
func (j *AllocationJob) Name() string {
	return "allocation"
}

// Run executes the allocation pass
func (j *AllocationJob) Run() error {
	if j.marketHours != nil && !j.marketHours.IsMarketOpen("NYSE") {
		j.log.Debug().Msg("Market closed, skipping allocation")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := j.allocator.Run(ctx, domain.ScenarioLive, time.Now().UTC())
	if err != nil {
		return err
	}

	j.log.Info().
		Str("cycle_id", result.CycleID).
		Str("phase", string(result.Phase)).
		Int("opened", result.Opened).
		Int("rejected", result.Rejected).
		Strs("symbols", result.Symbols).
		Msg("Allocation pass completed")

	return nil
}
