package cycles

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
)

// Phase day boundaries (day 1 is the cycle start day)
const (
	loadEndDay     = 7
	activeEndDay   = 60
	scaleOutEndDay = 75
)

// PhaseParams are the per-phase control parameters
type PhaseParams struct {
	DeployPct    float64 // fraction of portfolio deployable
	MaxPositions int     // position count ceiling
	SizeFactor   float64 // position size multiplier
	StopATRMult  float64 // ATR stop distance multiplier
	CashFloor    float64 // minimum cash reserve fraction
}

var phaseParams = map[domain.Phase]PhaseParams{
	domain.PhaseLoad:       {DeployPct: 0.70, MaxPositions: 12, SizeFactor: 1.5, StopATRMult: 2.0, CashFloor: 0.30},
	domain.PhaseActive:     {DeployPct: 0.80, MaxPositions: 16, SizeFactor: 1.0, StopATRMult: 1.5, CashFloor: 0.20},
	domain.PhaseScaleOut:   {DeployPct: 0.40, MaxPositions: 8, SizeFactor: 0.5, StopATRMult: 1.0, CashFloor: 0.60},
	domain.PhaseForceClose: {DeployPct: 0.00, MaxPositions: 0, SizeFactor: 0, StopATRMult: 0.5, CashFloor: 1.00},
}

// ParamsFor returns the control parameters for a phase
func ParamsFor(phase domain.Phase) PhaseParams {
	return phaseParams[phase]
}

// PhaseForDay maps a day-in-cycle to its phase
func PhaseForDay(day int) domain.Phase {
	switch {
	case day <= loadEndDay:
		return domain.PhaseLoad
	case day <= activeEndDay:
		return domain.PhaseActive
	case day <= scaleOutEndDay:
		return domain.PhaseScaleOut
	default:
		return domain.PhaseForceClose
	}
}

// Manager owns cycle lifecycle transitions
type Manager struct {
	repo         *CycleRepository
	durationDays int
	startingCash float64
	events       *events.Manager
	log          zerolog.Logger
}

// Config holds manager configuration
type Config struct {
	Repo         *CycleRepository
	DurationDays int
	StartingCash float64
	Events       *events.Manager
	Log          zerolog.Logger
}

// NewManager creates a new cycle manager
func NewManager(cfg Config) *Manager {
	return &Manager{
		repo:         cfg.Repo,
		durationDays: cfg.DurationDays,
		startingCash: cfg.StartingCash,
		events:       cfg.Events,
		log:          cfg.Log.With().Str("component", "cycle_manager").Logger(),
	}
}

// Repo exposes the cycle repository for read paths
func (m *Manager) Repo() *CycleRepository {
	return m.repo
}

// GetActive returns the current ACTIVE cycle, nil when none exists
func (m *Manager) GetActive() (*domain.Cycle, error) {
	return m.repo.GetActive()
}

// GetOrCreateActive returns the ACTIVE cycle, creating one when missing
func (m *Manager) GetOrCreateActive(now time.Time) (*domain.Cycle, error) {
	cycle, err := m.repo.GetActive()
	if err != nil {
		return nil, err
	}
	if cycle != nil {
		return cycle, nil
	}
	return m.CreateCycle(now, m.startingCash)
}

// CreateCycle starts a new cycle with the given working capital
func (m *Manager) CreateCycle(now time.Time, capital float64) (*domain.Cycle, error) {
	cycle := domain.Cycle{
		CycleID:         fmt.Sprintf("cycle_%s", now.UTC().Format("20060102_150405")),
		StartDate:       now.UTC(),
		DurationDays:    m.durationDays,
		Status:          domain.CycleActive,
		OriginalCapital: capital,
		WorkingCapital:  capital,
	}

	if err := m.repo.Insert(cycle); err != nil {
		return nil, fmt.Errorf("failed to create cycle: %w", err)
	}

	m.events.Emit(events.CycleCreated, "cycles", map[string]interface{}{
		"cycle_id": cycle.CycleID,
		"capital":  capital,
		"duration": m.durationDays,
	})

	return &cycle, nil
}

// DayInCycle returns the 1-based day number for a cycle
func DayInCycle(cycle *domain.Cycle, now time.Time) int {
	days := int(now.UTC().Sub(cycle.StartDate.UTC()).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return days
}

// CurrentPhase returns the phase a cycle is in right now
func (m *Manager) CurrentPhase(cycle *domain.Cycle, now time.Time) domain.Phase {
	return PhaseForDay(DayInCycle(cycle, now))
}

// CheckCompletion decides whether a cycle should complete and why.
// The checks run in severity order: an emergency trumps the calendar.
func (m *Manager) CheckCompletion(cycle *domain.Cycle, now time.Time, gate domain.Gate, openPositions int) (bool, string) {
	if cycle.Status != domain.CycleActive {
		return false, ""
	}

	day := DayInCycle(cycle, now)

	if gate == domain.GateNuclear {
		return true, domain.CompletionEmergency
	}

	if day >= cycle.DurationDays {
		return true, domain.CompletionDuration
	}

	// The force-close window (day 76 on) is a phase, not a completion: the
	// sweep drains positions there and the cycle ends on DURATION_ELAPSED,
	// ALL_CLOSED, or an emergency.

	// All positions closed counts only after the loading window, otherwise
	// a brand-new cycle would complete before its first allocation.
	if openPositions == 0 && day > loadEndDay {
		return true, domain.CompletionAllClosed
	}

	return false, ""
}

// UpdatePerformance recomputes realized pnl and return for a cycle from
// its closed positions.
func (m *Manager) UpdatePerformance(cycle *domain.Cycle, realizedPnL float64) error {
	cycle.RealizedPnL = realizedPnL
	if cycle.OriginalCapital > 0 {
		cycle.ReturnPct = realizedPnL / cycle.OriginalCapital
	}

	if err := m.repo.Update(*cycle); err != nil {
		return fmt.Errorf("failed to update cycle performance: %w", err)
	}

	return nil
}
