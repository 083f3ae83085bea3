package allocation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/broker"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/philosophy"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/risk"
	"github.com/aristath/insider-trader/internal/modules/signals"
	"github.com/aristath/insider-trader/internal/modules/sizing"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// candidateLimit caps how many scored signals one allocation run considers
const candidateLimit = 20

// slotBudget is the nominal capital reserved per remaining position slot
const slotBudget = sizing.TargetPositionValue

// RoundDurationDays is the initial holding round granted to a position
const RoundDurationDays = 30

// clusterLookbackDays bounds the filer-cluster window for the Pabrai rule
const clusterLookbackDays = 30

// Result summarizes one allocation run
type Result struct {
	CycleID  string   `json:"cycle_id"`
	Phase    string   `json:"phase"`
	Gate     string   `json:"gate"`
	Opened   int      `json:"opened"`
	Rejected int      `json:"rejected"`
	Skipped  string   `json:"skipped,omitempty"` // set when the run did nothing
	Symbols  []string `json:"symbols,omitempty"`
}

// Allocator turns scored signals into sized positions inside the active
// cycle, under the phase and risk constraints.
type Allocator struct {
	cycles     *cycles.Manager
	risk       *risk.Manager
	signals    *signals.SignalRepository
	positions  *positions.Repository
	decisions  *DecisionRepository
	orders     *orders.Manager
	philosophy *philosophy.Engine
	sizer      *sizing.Sizer
	broker     broker.Broker
	events     *events.Manager
	log        zerolog.Logger
}

// Config wires the allocator
type Config struct {
	Cycles     *cycles.Manager
	Risk       *risk.Manager
	Signals    *signals.SignalRepository
	Positions  *positions.Repository
	Decisions  *DecisionRepository
	Orders     *orders.Manager
	Philosophy *philosophy.Engine
	Sizer      *sizing.Sizer
	Broker     broker.Broker
	Events     *events.Manager
	Log        zerolog.Logger
}

// NewAllocator creates a new allocator
func NewAllocator(cfg Config) *Allocator {
	return &Allocator{
		cycles:     cfg.Cycles,
		risk:       cfg.Risk,
		signals:    cfg.Signals,
		positions:  cfg.Positions,
		decisions:  cfg.Decisions,
		orders:     cfg.Orders,
		philosophy: cfg.Philosophy,
		sizer:      cfg.Sizer,
		broker:     cfg.Broker,
		events:     cfg.Events,
		log:        cfg.Log.With().Str("component", "allocator").Logger(),
	}
}

// Run executes one allocation pass for an account. The pass is a no-op
// when the phase forbids entries, the risk gate is closed, or no capital
// or slots remain.
func (a *Allocator) Run(ctx context.Context, scenario string, now time.Time) (Result, error) {
	cycle, err := a.cycles.GetOrCreateActive(now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve active cycle: %w", err)
	}

	phase := a.cycles.CurrentPhase(cycle, now)
	result := Result{CycleID: cycle.CycleID, Phase: string(phase)}

	if phase == domain.PhaseForceClose {
		result.Skipped = "FORCE_CLOSE_PHASE"
		return result, nil
	}

	gate, err := a.risk.CurrentGate(scenario)
	if err != nil {
		return result, fmt.Errorf("failed to compute risk gate: %w", err)
	}
	result.Gate = string(gate)

	if !gate.AllowsEntries() {
		result.Skipped = "RISK_GATE_CLOSED"
		a.log.Warn().Str("gate", string(gate)).Msg("Allocation skipped, risk gate closed")
		return result, nil
	}

	params := cycles.ParamsFor(phase)

	openCount, err := a.positions.CountOpen(scenario)
	if err != nil {
		return result, fmt.Errorf("failed to count open positions: %w", err)
	}
	slots := params.MaxPositions - openCount
	if slots <= 0 {
		result.Skipped = "NO_SLOTS"
		return result, nil
	}

	cash, err := a.broker.CashBalance()
	if err != nil {
		return result, fmt.Errorf("failed to read cash balance: %w", err)
	}
	invested, err := a.positions.InvestedValue(scenario)
	if err != nil {
		return result, fmt.Errorf("failed to read invested value: %w", err)
	}
	portfolio := cash + invested

	available := math.Min(
		params.DeployPct*portfolio-invested,
		float64(slots)*slotBudget,
	)
	available = math.Min(available, cash)
	if available < sizing.MinPositionValue {
		result.Skipped = "NO_CAPITAL"
		return result, nil
	}

	candidates, err := a.signals.GetCandidates(candidateLimit)
	if err != nil {
		return result, fmt.Errorf("failed to load candidates: %w", err)
	}

	power, err := a.philosophy.Power(scenario)
	if err != nil {
		a.log.Warn().Err(err).Msg("Falling back to default allocation power")
		power = philosophy.DefaultPower
	}

	for _, sig := range candidates {
		if slots <= 0 || available < sizing.MinPositionValue {
			break
		}

		existing, err := a.positions.GetOpenBySymbol(scenario, sig.Symbol)
		if err != nil {
			return result, fmt.Errorf("failed to check open position: %w", err)
		}
		if existing != nil {
			continue
		}

		cluster, err := a.signals.CountDistinctFilers(sig.Symbol, sig.Source, clusterLookbackDays)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Cluster count failed")
			cluster = 1
		}

		verdict, err := a.philosophy.EvaluateEntry(scenario, sig, cluster)
		if err != nil {
			return result, fmt.Errorf("failed to evaluate entry: %w", err)
		}
		if verdict.Reject {
			result.Rejected++
			a.log.Info().
				Str("symbol", sig.Symbol).
				Str("reason", verdict.Reason).
				Msg("Entry rejected by philosophy")
			continue
		}

		sized := a.sizer.Size(ctx, sig.Symbol, available, params.SizeFactor)
		if sized.Shares == 0 {
			result.Rejected++
			a.log.Info().
				Str("symbol", sig.Symbol).
				Str("reason", sized.Reason).
				Msg("Candidate failed sizing")
			continue
		}
		price := sized.Value / float64(sized.Shares)

		// Allocation power scales the phase-sized slot once; the cluster
		// multiplier compounds on top of that.
		value := sized.Value * power * verdict.Multiplier
		value = formulas.Clamp(value, sizing.MinPositionValue, phaseMaxValue(params))
		value = math.Min(value, available)

		shares := int(math.Floor(value / price))
		if shares < 1 {
			result.Rejected++
			continue
		}

		stop := risk.StopPrice(price, sized.ATR, phase, sig.Direction)
		roundStart := now.UTC()
		roundExpiry := roundStart.AddDate(0, 0, RoundDurationDays)

		pos, err := a.orders.OpenPosition(ctx, orders.EntryRequest{
			Scenario:    scenario,
			Symbol:      sig.Symbol,
			Direction:   sig.Direction,
			Shares:      shares,
			Tier:        sig.ConvictionTier,
			CycleID:     cycle.CycleID,
			SignalID:    sig.SignalID,
			StopPrice:   stop,
			RoundStart:  &roundStart,
			RoundExpiry: &roundExpiry,
		})
		if err != nil {
			return result, err
		}
		if pos == nil {
			result.Rejected++
			continue
		}

		decision := domain.AllocationDecision{
			CycleID:        cycle.CycleID,
			Scenario:       scenario,
			SignalID:       sig.SignalID,
			Symbol:         sig.Symbol,
			Direction:      sig.Direction,
			ConvictionTier: sig.ConvictionTier,
			Shares:         pos.Shares,
			TargetPrice:    price,
			SlotValue:      pos.EntryValue,
			ClusterSize:    cluster,
		}
		if err := a.decisions.Insert(decision); err != nil {
			a.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Failed to record decision")
		}
		if err := a.signals.AssignCycle(sig.SignalID, cycle.CycleID); err != nil {
			a.log.Error().Err(err).Str("signal_id", sig.SignalID).Msg("Failed to tag signal")
		}

		available -= pos.EntryValue
		slots--
		result.Opened++
		result.Symbols = append(result.Symbols, sig.Symbol)
	}

	a.events.Emit(events.AllocationRun, "allocation", map[string]interface{}{
		"cycle_id": cycle.CycleID,
		"scenario": scenario,
		"phase":    string(phase),
		"gate":     string(gate),
		"opened":   result.Opened,
		"rejected": result.Rejected,
	})

	return result, nil
}

// phaseMaxValue is the per-position ceiling after the phase size factor.
// The loading phase may exceed the nominal maximum by its factor.
func phaseMaxValue(params cycles.PhaseParams) float64 {
	if params.SizeFactor > 1 {
		return sizing.MaxPositionValue * params.SizeFactor
	}
	return sizing.MaxPositionValue
}
