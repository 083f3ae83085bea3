package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/modules/allocation"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/scenarios"
)

// ScenarioJob replays the day's allocation decisions through every
// sandbox after the live pass has settled down.
type ScenarioJob struct {
	log          zerolog.Logger
	cycles       *cycles.Manager
	decisions    *allocation.DecisionRepository
	orchestrator *scenarios.Orchestrator
}

// NewScenarioJob creates a new scenario replay job
func NewScenarioJob(cm *cycles.Manager, dec *allocation.DecisionRepository, o *scenarios.Orchestrator, log zerolog.Logger) *ScenarioJob {
	return &ScenarioJob{
		log:          log.With().Str("job", "scenarios").Logger(),
		cycles:       cm,
		decisions:    dec,
		orchestrator: o,
	}
}

// Name returns the job name
func (j *ScenarioJob) Name() string {
	return "scenario_replay"
}

// Run executes the sandbox replay
func (j *ScenarioJob) Run() error {
	cycle, err := j.cycles.GetActive()
	if err != nil {
		return err
	}
	if cycle == nil {
		j.log.Debug().Msg("No active cycle, skipping scenario replay")
		return nil
	}

	decisions, err := j.decisions.ForCycle(cycle.CycleID)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		j.log.Debug().Msg("No allocation decisions to replay")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.orchestrator.ExecuteAll(ctx, decisions); err != nil {
		return err
	}

	j.log.Info().
		Str("cycle_id", cycle.CycleID).
		Int("decisions", len(decisions)).
		Msg("Scenario replay completed")

	return nil
}
