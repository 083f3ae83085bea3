package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/modules/audit"
	"github.com/aristath/insider-trader/internal/modules/backup"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/risk"
)

// snapshotRetentionDays keeps the value series comfortably past the
// longest drawdown window.
const snapshotRetentionDays = 180

// ReconcileJob is the end-of-day pass: record where the active cycle
// stands, verify the audit chain, prune old portfolio snapshots, and push
// a backup when one is configured.
type ReconcileJob struct {
	log       zerolog.Logger
	audit     *audit.Log
	snapshots *risk.SnapshotRepository
	backup    *backup.Service
	cycles    *cycles.Manager
	risk      *risk.Manager
	positions *positions.Repository
	orders    *orders.Manager
}

// ReconcileJobConfig wires the end-of-day job
type ReconcileJobConfig struct {
	Audit     *audit.Log
	Snapshots *risk.SnapshotRepository
	Backup    *backup.Service
	Cycles    *cycles.Manager
	Risk      *risk.Manager
	Positions *positions.Repository
	Orders    *orders.Manager
	Log       zerolog.Logger
}

// NewReconcileJob creates a new end-of-day reconcile job
func NewReconcileJob(cfg ReconcileJobConfig) *ReconcileJob {
	return &ReconcileJob{
		log:       cfg.Log.With().Str("job", "reconcile").Logger(),
		audit:     cfg.Audit,
		snapshots: cfg.Snapshots,
		backup:    cfg.Backup,
		cycles:    cfg.Cycles,
		risk:      cfg.Risk,
		positions: cfg.Positions,
		orders:    cfg.Orders,
	}
}

// Name returns the job name
func (j *ReconcileJob) Name() string {
	return "eod_reconcile"
}

// Run executes the end-of-day pass
func (j *ReconcileJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := j.recordCycleState(ctx, time.Now().UTC()); err != nil {
		j.log.Error().Err(err).Msg("Cycle state record failed")
	}

	if err := j.audit.Verify(); err != nil {
		j.log.Error().Err(err).Msg("Audit chain verification FAILED")
		return err
	}
	j.log.Info().Msg("Audit chain verified")

	cutoff := time.Now().UTC().AddDate(0, 0, -snapshotRetentionDays)
	pruned, err := j.snapshots.Prune(cutoff)
	if err != nil {
		j.log.Error().Err(err).Msg("Snapshot pruning failed")
	} else if pruned > 0 {
		j.log.Info().Int64("pruned", pruned).Msg("Old snapshots pruned")
	}

	if j.backup != nil && j.backup.Enabled() {
		key, err := j.backup.Create(ctx)
		if err != nil {
			j.log.Error().Err(err).Msg("Nightly backup failed")
			return err
		}
		j.log.Info().Str("key", key).Msg("Nightly backup stored")
	}

	return nil
}

// recordCycleState appends today's row to the active cycle's daily
// journal: day, phase, gate, position count, account value and cash.
func (j *ReconcileJob) recordCycleState(ctx context.Context, now time.Time) error {
	cycle, err := j.cycles.GetActive()
	if err != nil {
		return err
	}
	if cycle == nil {
		return nil
	}

	gate, err := j.risk.CurrentGate(domain.ScenarioLive)
	if err != nil {
		j.log.Warn().Err(err).Msg("Gate lookup failed, recording GREEN")
		gate = domain.GateGreen
	}

	open, err := j.positions.CountOpen(domain.ScenarioLive)
	if err != nil {
		return err
	}

	value, err := j.orders.Broker().AccountValue(ctx)
	if err != nil {
		return err
	}
	cash, err := j.orders.Broker().CashBalance()
	if err != nil {
		return err
	}

	day := cycles.DayInCycle(cycle, now)
	return j.cycles.Repo().RecordState(domain.CycleState{
		CycleID:        cycle.CycleID,
		Day:            day,
		Phase:          cycles.PhaseForDay(day),
		Gate:           gate,
		OpenPositions:  open,
		PortfolioValue: value,
		Cash:           cash,
		TakenAt:        now,
	})
}
