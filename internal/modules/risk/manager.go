package risk

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// Drawdown gate thresholds (current drawdown, max drawdown). A gate
// trips when either leg is breached; the most severe matching gate wins.
const (
	YellowCurrent  = 0.05
	YellowMax      = 0.10
	RedCurrent     = 0.10
	RedMax         = 0.15
	NuclearCurrent = 0.15
	NuclearMax     = 0.20
)

// MaxPositionRiskPct caps the loss any single position may carry
// relative to the whole portfolio.
const MaxPositionRiskPct = 0.02

// drawdownWindowDays bounds the snapshot series the gates look at
const drawdownWindowDays = 120

// GateFor maps drawdown levels to a gate
func GateFor(currentDrawdown, maxDrawdown float64) domain.Gate {
	switch {
	case currentDrawdown >= NuclearCurrent || maxDrawdown >= NuclearMax:
		return domain.GateNuclear
	case currentDrawdown >= RedCurrent || maxDrawdown >= RedMax:
		return domain.GateRed
	case currentDrawdown >= YellowCurrent || maxDrawdown >= YellowMax:
		return domain.GateYellow
	default:
		return domain.GateGreen
	}
}

// StopPrice computes the ATR stop for a position in the given phase.
// Long stops sit below entry, short stops above.
func StopPrice(entryPrice, atr float64, phase domain.Phase, direction string) float64 {
	mult := cycles.ParamsFor(phase).StopATRMult
	distance := atr * mult

	if direction == domain.DirectionShort {
		return entryPrice + distance
	}
	return entryPrice - distance
}

// PositionRiskPct returns the open loss of a position as a fraction of
// its market value. Profitable positions carry zero risk here.
func PositionRiskPct(unrealizedPnL, positionValue float64) float64 {
	if positionValue <= 0 || unrealizedPnL >= 0 {
		return 0
	}
	return math.Abs(unrealizedPnL) / positionValue
}

// Manager evaluates portfolio risk state from the snapshot series
type Manager struct {
	snapshots *SnapshotRepository
	events    *events.Manager
	log       zerolog.Logger

	lastGate map[string]domain.Gate
}

// NewManager creates a new risk manager
func NewManager(snapshots *SnapshotRepository, ev *events.Manager, log zerolog.Logger) *Manager {
	return &Manager{
		snapshots: snapshots,
		events:    ev,
		log:       log.With().Str("component", "risk").Logger(),
		lastGate:  make(map[string]domain.Gate),
	}
}

// Snapshots exposes the snapshot repository for the mark-to-market job
func (m *Manager) Snapshots() *SnapshotRepository {
	return m.snapshots
}

// CurrentGate computes the drawdown gate for an account. With too little
// history the gate is GREEN; you cannot be in drawdown you haven't seen.
func (m *Manager) CurrentGate(scenario string) (domain.Gate, error) {
	since := time.Now().UTC().AddDate(0, 0, -drawdownWindowDays)

	values, err := m.snapshots.Values(scenario, since)
	if err != nil {
		return domain.GateGreen, err
	}

	gate := domain.GateGreen
	if metrics := formulas.CalculateDrawdownMetrics(values); metrics != nil {
		gate = GateFor(metrics.CurrentDrawdown, metrics.MaxDrawdown)
	}

	if prev, ok := m.lastGate[scenario]; !ok || prev != gate {
		if ok {
			m.log.Warn().
				Str("scenario", scenario).
				Str("from", string(prev)).
				Str("to", string(gate)).
				Msg("Risk gate changed")
			m.events.Emit(events.GateChanged, "risk", map[string]interface{}{
				"scenario": scenario,
				"from":     string(prev),
				"to":       string(gate),
			})
		}
		m.lastGate[scenario] = gate
	}

	return gate, nil
}

// CashFloor returns the minimum cash reserve fraction for a phase
func CashFloor(phase domain.Phase) float64 {
	return cycles.ParamsFor(phase).CashFloor
}
