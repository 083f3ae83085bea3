package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/risk"
	"github.com/aristath/insider-trader/internal/modules/scenarios"
)

// MarkJob is the five-minute heartbeat: refresh marks, snapshot account
// values for the drawdown window, and check whether the active cycle
// should complete.
type MarkJob struct {
	log          zerolog.Logger
	orders       *orders.Manager
	positions    *positions.Repository
	orchestrator *scenarios.Orchestrator
	risk         *risk.Manager
	cycles       *cycles.Manager
	settler      *cycles.Settler
	marketHours  *MarketHoursService
}

// MarkJobConfig wires the mark-to-market job
type MarkJobConfig struct {
	Orders       *orders.Manager
	Positions    *positions.Repository
	Orchestrator *scenarios.Orchestrator
	Risk         *risk.Manager
	Cycles       *cycles.Manager
	Settler      *cycles.Settler
	MarketHours  *MarketHoursService
	Log          zerolog.Logger
}

// NewMarkJob creates a new mark-to-market job
func NewMarkJob(cfg MarkJobConfig) *MarkJob {
	return &MarkJob{
		log:          cfg.Log.With().Str("job", "mark_to_market").Logger(),
		orders:       cfg.Orders,
		positions:    cfg.Positions,
		orchestrator: cfg.Orchestrator,
		risk:         cfg.Risk,
		cycles:       cfg.Cycles,
		settler:      cfg.Settler,
		marketHours:  cfg.MarketHours,
	}
}

// Name returns the job name
func (j *MarkJob) Name() string {
	return "mark_to_market"
}

// Run executes one heartbeat
func (j *MarkJob) Run() error {
	if j.marketHours != nil && !j.marketHours.IsMarketOpen("NYSE") {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := j.orders.MarkToMarket(ctx, domain.ScenarioLive); err != nil {
		j.log.Error().Err(err).Msg("Mark-to-market failed")
	}
	j.snapshot(ctx, domain.ScenarioLive, j.orders)

	for _, sandbox := range j.orchestrator.Sandboxes() {
		if err := sandbox.Orders.MarkToMarket(ctx, sandbox.Name); err != nil {
			j.log.Error().Err(err).Str("scenario", sandbox.Name).Msg("Sandbox mark failed")
			continue
		}
		j.snapshot(ctx, sandbox.Name, sandbox.Orders)
	}

	return j.checkCycleCompletion(ctx)
}

// snapshot records one portfolio value sample for the drawdown window
func (j *MarkJob) snapshot(ctx context.Context, scenario string, mgr *orders.Manager) {
	value, err := mgr.Broker().AccountValue(ctx)
	if err != nil {
		j.log.Error().Err(err).Str("scenario", scenario).Msg("Failed to read account value")
		return
	}
	cash, err := mgr.Broker().CashBalance()
	if err != nil {
		j.log.Error().Err(err).Str("scenario", scenario).Msg("Failed to read cash balance")
		return
	}

	if err := j.risk.Snapshots().Insert(scenario, value, cash); err != nil {
		j.log.Error().Err(err).Str("scenario", scenario).Msg("Failed to persist snapshot")
	}
}

// checkCycleCompletion settles the active cycle when a completion
// condition holds.
func (j *MarkJob) checkCycleCompletion(ctx context.Context) error {
	cycle, err := j.cycles.GetActive()
	if err != nil {
		return err
	}
	if cycle == nil {
		return nil
	}

	gate, err := j.risk.CurrentGate(domain.ScenarioLive)
	if err != nil {
		return err
	}
	open, err := j.positions.CountOpen(domain.ScenarioLive)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	done, reason := j.cycles.CheckCompletion(cycle, now, gate, open)
	if !done {
		return nil
	}

	j.log.Warn().
		Str("cycle_id", cycle.CycleID).
		Str("reason", reason).
		Msg("Cycle completion triggered")

	_, err = j.settler.Settle(ctx, cycle, domain.ScenarioLive, now, reason)
	return err
}
