package philosophy

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// Allocation power bounds
const (
	MinPower     = 0.30
	MaxPower     = 1.50
	DefaultPower = 1.0
)

// CleanRoundsForFullRestore resets power to the default after a streak of
// violation-free rounds.
const CleanRoundsForFullRestore = 10

// expectedReturnFactor converts a composite signal score into a crude
// annualized expected-return estimate for the Buffett gate.
const expectedReturnFactor = 0.40

// EntryVerdict is the engine's judgement on one allocation candidate
type EntryVerdict struct {
	Reject     bool    `json:"reject"`
	Reason     string  `json:"reason,omitempty"`
	Multiplier float64 `json:"multiplier"` // Pabrai cluster sizing multiplier
}

// Engine applies the behavioral rule packs to allocation and review
// decisions and maintains the persisted allocation power.
type Engine struct {
	repo      *StateRepository
	overrides map[string]PackConfig
	events    *events.Manager
	log       zerolog.Logger
}

// NewEngine creates a new philosophy engine. Overrides may be nil.
func NewEngine(repo *StateRepository, overrides map[string]PackConfig, ev *events.Manager, log zerolog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		overrides: overrides,
		events:    ev,
		log:       log.With().Str("component", "philosophy").Logger(),
	}
}

// Repo exposes the state repository for handlers
func (e *Engine) Repo() *StateRepository {
	return e.repo
}

// ConfigFor resolves the effective pack config for an account
func (e *Engine) ConfigFor(state *domain.PhilosophyState) PackConfig {
	if override, ok := e.overrides[state.Preset]; ok {
		return override
	}
	return PresetConfig(state.Preset)
}

// Power returns the current allocation power for an account
func (e *Engine) Power(scenario string) (float64, error) {
	state, err := e.repo.Get(scenario)
	if err != nil {
		return DefaultPower, err
	}
	return state.AllocationPower, nil
}

// ExpectedReturn estimates the expected return of a signal from its
// composite score.
func ExpectedReturn(totalScore float64) float64 {
	return totalScore * expectedReturnFactor
}

// EvaluateEntry runs the entry-time packs (Buffett, Pabrai) over one
// candidate. Buffett rejection also costs allocation power.
func (e *Engine) EvaluateEntry(scenario string, sig domain.Signal, clusterSize int) (EntryVerdict, error) {
	state, err := e.repo.Get(scenario)
	if err != nil {
		return EntryVerdict{Multiplier: 1.0}, err
	}
	cfg := e.ConfigFor(state)

	verdict := EntryVerdict{Multiplier: 1.0}

	if cfg.Buffett.Enabled && ExpectedReturn(sig.TotalScore) < cfg.Buffett.MinExpectedReturn {
		verdict.Reject = true
		verdict.Reason = "BUFFETT_THIN_EDGE"

		if err := e.recordViolation(state, "buffett", cfg.Buffett.Penalty); err != nil {
			return verdict, err
		}
		return verdict, nil
	}

	if cfg.Pabrai.Enabled && clusterSize >= cfg.Pabrai.ClusterThreshold {
		verdict.Multiplier = cfg.Pabrai.Multiplier

		// Cluster conviction also earns back a little power
		state.AllocationPower = formulas.Clamp(state.AllocationPower*(1+cfg.Pabrai.PowerBonus), MinPower, MaxPower)
		if err := e.repo.Save(*state); err != nil {
			return verdict, err
		}
	}

	return verdict, nil
}

// ShouldForceClose runs the O'Leary stagnation rule over an open position
func (e *Engine) ShouldForceClose(scenario string, heldDays int, returnPct float64) (bool, error) {
	state, err := e.repo.Get(scenario)
	if err != nil {
		return false, err
	}
	cfg := e.ConfigFor(state)

	if !cfg.OLeary.Enabled {
		return false, nil
	}

	return heldDays > cfg.OLeary.MaxHoldDays && returnPct < cfg.OLeary.MinReturn, nil
}

// ExtensionDays runs the Saylor rule: strong risk-adjusted winners get
// their round expiry pushed out, up to the per-account extension budget.
func (e *Engine) ExtensionDays(scenario string, sharpe *float64, tier domain.Tier) (int, error) {
	state, err := e.repo.Get(scenario)
	if err != nil {
		return 0, err
	}
	cfg := e.ConfigFor(state)

	if !cfg.Saylor.Enabled || sharpe == nil {
		return 0, nil
	}
	if *sharpe < cfg.Saylor.MinSharpe || tier.Value() < cfg.Saylor.MinTier.Value() {
		return 0, nil
	}
	if state.SaylorExtensions >= cfg.Saylor.MaxExtensions {
		return 0, nil
	}

	state.SaylorExtensions++
	if err := e.repo.Save(*state); err != nil {
		return 0, err
	}

	return cfg.Saylor.ExtensionDays, nil
}

// RecordUnloggedTrade applies the Dalio penalty for trades made outside
// the decision log.
func (e *Engine) RecordUnloggedTrade(scenario string) error {
	state, err := e.repo.Get(scenario)
	if err != nil {
		return err
	}
	cfg := e.ConfigFor(state)

	if !cfg.Dalio.Enabled {
		return nil
	}
	return e.recordViolation(state, "dalio", cfg.Dalio.Penalty)
}

// RecordDisciplineBreak applies the Japanese discipline penalty
func (e *Engine) RecordDisciplineBreak(scenario, rule string) error {
	state, err := e.repo.Get(scenario)
	if err != nil {
		return err
	}
	cfg := e.ConfigFor(state)

	if !cfg.Japanese.Enabled {
		return nil
	}
	return e.recordViolation(state, rule, cfg.Japanese.Penalty)
}

// RecordCleanRound credits a violation-free round: penalties decay and a
// long enough streak restores power fully.
func (e *Engine) RecordCleanRound(scenario string) error {
	state, err := e.repo.Get(scenario)
	if err != nil {
		return err
	}
	cfg := e.ConfigFor(state)

	state.CleanRounds++

	if state.CleanRounds >= CleanRoundsForFullRestore {
		state.AllocationPower = DefaultPower
		state.TotalPenalty = 0
		state.CleanRounds = 0
		state.LastViolation = ""
		state.LastViolationAt = nil
	} else if state.TotalPenalty < 0 && cfg.Japanese.DecayRounds > 0 {
		// Walk the penalty back over the configured decay horizon
		restore := -state.TotalPenalty / float64(cfg.Japanese.DecayRounds)
		state.AllocationPower = formulas.Clamp(state.AllocationPower*(1+restore), MinPower, MaxPower)
		state.TotalPenalty += restore
		if state.TotalPenalty > 0 {
			state.TotalPenalty = 0
		}
	}

	if err := e.repo.Save(*state); err != nil {
		return err
	}

	e.events.Emit(events.PowerAdjusted, "philosophy", map[string]interface{}{
		"scenario":     scenario,
		"power":        state.AllocationPower,
		"clean_rounds": state.CleanRounds,
	})

	return nil
}

func (e *Engine) recordViolation(state *domain.PhilosophyState, rule string, penalty float64) error {
	now := time.Now().UTC()

	state.AllocationPower = formulas.Clamp(state.AllocationPower*(1+penalty), MinPower, MaxPower)
	state.TotalPenalty += penalty
	state.CleanRounds = 0
	state.LastViolation = rule
	state.LastViolationAt = &now

	if err := e.repo.Save(*state); err != nil {
		return err
	}

	e.log.Warn().
		Str("scenario", state.Scenario).
		Str("rule", rule).
		Float64("penalty", penalty).
		Float64("power", state.AllocationPower).
		Msg("Philosophy violation recorded")

	e.events.Emit(events.PowerAdjusted, "philosophy", map[string]interface{}{
		"scenario": state.Scenario,
		"rule":     rule,
		"power":    state.AllocationPower,
	})

	return nil
}
