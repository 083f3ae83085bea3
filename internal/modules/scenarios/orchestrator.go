package scenarios

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/broker"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/philosophy"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/signals"
	"github.com/aristath/insider-trader/internal/modules/sizing"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// DefaultCapital is the starting cash of each sandbox
const DefaultCapital = 100_000.0

// Names pairs each sandbox with its philosophy preset
var Names = map[string]string{
	"conservative": philosophy.PresetConservative,
	"balanced":     philosophy.PresetBalanced,
	"aggressive":   philosophy.PresetAggressive,
	"high-risk":    philosophy.PresetHighRisk,
	"custom":       philosophy.PresetCustom,
}

// Sandbox is one isolated what-if account
type Sandbox struct {
	Name   string
	Preset string
	Broker *broker.Paper
	Orders *orders.Manager
}

// Orchestrator replays the live allocation decisions through five
// sandboxes, each under a different philosophy preset, so the presets
// can be compared on identical inputs.
type Orchestrator struct {
	sandboxes  []*Sandbox
	states     *StateRepository
	positions  *positions.Repository
	signals    *signals.SignalRepository
	philosophy *philosophy.Engine
	events     *events.Manager
	log        zerolog.Logger
}

// Config wires the orchestrator
type Config struct {
	States      *StateRepository
	Positions   *positions.Repository
	Signals     *signals.SignalRepository
	Philosophy  *philosophy.Engine
	OrderRepo   *orders.Repository
	Audit       orders.AuditRecorder
	Events      *events.Manager
	SlippageBps float64
	Seed        int64
	Log         zerolog.Logger
}

// NewOrchestrator builds the five sandboxes and makes sure each has its
// preset's philosophy state and a persisted aggregate row.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	o := &Orchestrator{
		states:     cfg.States,
		positions:  cfg.Positions,
		signals:    cfg.Signals,
		philosophy: cfg.Philosophy,
		events:     cfg.Events,
		log:        cfg.Log.With().Str("component", "scenarios").Logger(),
	}

	for name, preset := range Names {
		paper := broker.NewPaper(broker.PaperConfig{
			StartingCash: DefaultCapital,
			SlippageBps:  cfg.SlippageBps,
			Seed:         cfg.Seed + int64(nameSeed(name)),
			Events:       cfg.Events,
			Log:          cfg.Log,
		})
		if err := paper.Connect(); err != nil {
			return nil, fmt.Errorf("failed to connect sandbox broker: %w", err)
		}

		o.sandboxes = append(o.sandboxes, &Sandbox{
			Name:   name,
			Preset: preset,
			Broker: paper,
			Orders: orders.NewManager(orders.ManagerConfig{
				Broker:    paper,
				Orders:    cfg.OrderRepo,
				Positions: cfg.Positions,
				Audit:     cfg.Audit,
				Events:    cfg.Events,
				Log:       cfg.Log.With().Str("scenario", name).Logger(),
			}),
		})

		if err := o.ensureState(name, preset); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Sandboxes exposes the sandbox list for handlers
func (o *Orchestrator) Sandboxes() []*Sandbox {
	return o.sandboxes
}

// States exposes the state repository for handlers
func (o *Orchestrator) States() *StateRepository {
	return o.states
}

// ExecuteAll replays the decisions through every sandbox in parallel.
// A failing sandbox reports its error without stopping the others; the
// combined error surfaces afterward.
func (o *Orchestrator) ExecuteAll(ctx context.Context, decisions []domain.AllocationDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, sandbox := range o.sandboxes {
		sandbox := sandbox
		g.Go(func() error {
			if err := o.execute(ctx, sandbox, decisions); err != nil {
				o.log.Error().Err(err).Str("scenario", sandbox.Name).Msg("Scenario execution failed")
				return fmt.Errorf("scenario %s: %w", sandbox.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()

	o.events.Emit(events.ScenariosExecuted, "scenarios", map[string]interface{}{
		"decisions": len(decisions),
		"sandboxes": len(o.sandboxes),
	})

	return err
}

// execute applies the decisions to one sandbox under its own preset
func (o *Orchestrator) execute(ctx context.Context, sandbox *Sandbox, decisions []domain.AllocationDecision) error {
	for _, decision := range decisions {
		sig, err := o.signals.GetByID(decision.SignalID)
		if err != nil {
			return fmt.Errorf("failed to load signal %s: %w", decision.SignalID, err)
		}
		if sig == nil {
			continue
		}

		verdict, err := o.philosophy.EvaluateEntry(sandbox.Name, *sig, decision.ClusterSize)
		if err != nil {
			return err
		}
		if verdict.Reject {
			continue
		}

		// Same symbol twice means the sandbox rolls its position over
		existing, err := o.positions.GetOpenBySymbol(sandbox.Name, decision.Symbol)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := sandbox.Orders.ClosePosition(ctx, *existing, domain.CloseReallocation); err != nil {
				o.log.Warn().Err(err).Str("symbol", decision.Symbol).Msg("Reallocation close failed")
				continue
			}
		}

		power, err := o.philosophy.Power(sandbox.Name)
		if err != nil {
			power = philosophy.DefaultPower
		}

		value := decision.SlotValue * power * verdict.Multiplier
		value = formulas.Clamp(value, sizing.MinPositionValue, sizing.MaxPositionValue)
		shares := int(math.Floor(value / decision.TargetPrice))
		if shares < 1 {
			shares = 1
		}

		if _, err := sandbox.Orders.OpenPosition(ctx, orders.EntryRequest{
			Scenario:  sandbox.Name,
			Symbol:    decision.Symbol,
			Direction: decision.Direction,
			Shares:    shares,
			Tier:      decision.ConvictionTier,
			CycleID:   decision.CycleID,
			SignalID:  decision.SignalID,
		}); err != nil {
			return err
		}
	}

	return o.updatePerformance(ctx, sandbox)
}

// updatePerformance recomputes the sandbox aggregate from its broker and
// position book.
func (o *Orchestrator) updatePerformance(ctx context.Context, sandbox *Sandbox) error {
	state, err := o.states.Get(sandbox.Name)
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("scenario state %s missing", sandbox.Name)
	}

	value, err := sandbox.Broker.AccountValue(ctx)
	if err != nil {
		return fmt.Errorf("failed to value sandbox: %w", err)
	}
	cash, err := sandbox.Broker.CashBalance()
	if err != nil {
		return err
	}

	state.Cash = cash
	state.TotalPnL = value - state.InitialCapital
	if state.InitialCapital > 0 {
		state.ReturnPct = state.TotalPnL / state.InitialCapital
	}

	return o.states.Save(*state)
}

// Reset wipes a sandbox back to its starting state
func (o *Orchestrator) Reset(ctx context.Context, name string) error {
	for _, sandbox := range o.sandboxes {
		if sandbox.Name != name {
			continue
		}

		open, err := o.positions.GetOpen(name)
		if err != nil {
			return err
		}
		for _, pos := range open {
			if err := sandbox.Orders.ClosePosition(ctx, pos, domain.CloseReallocation); err != nil {
				o.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Reset close failed")
			}
		}

		if err := o.philosophy.Repo().Reset(name); err != nil {
			return err
		}
		return o.ensureState(name, sandbox.Preset)
	}
	return fmt.Errorf("unknown scenario %q", name)
}

func (o *Orchestrator) ensureState(name, preset string) error {
	state, err := o.states.Get(name)
	if err != nil {
		return err
	}
	if state == nil {
		state = &domain.ScenarioState{
			Name:           name,
			InitialCapital: DefaultCapital,
			Cash:           DefaultCapital,
		}
	}
	state.Preset = preset

	if err := o.states.Save(*state); err != nil {
		return err
	}

	// The philosophy state must carry the sandbox's preset, not Balanced
	phil, err := o.philosophy.Repo().Get(name)
	if err != nil {
		return err
	}
	if phil.Preset != preset {
		phil.Preset = preset
		if err := o.philosophy.Repo().Save(*phil); err != nil {
			return err
		}
	}

	return nil
}

// nameSeed derives a stable per-sandbox offset so the five simulated
// markets differ but reproduce run to run.
func nameSeed(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}
