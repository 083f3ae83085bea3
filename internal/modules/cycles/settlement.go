package cycles

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// Settlement gates
const (
	MinSettlementDay = 30 // a cycle must age before it can settle
	MinPositions     = 5  // and must actually have traded
)

// Settlement economics
const (
	withdrawPct    = 0.50 // share of positive pnl taken off the table
	nextCapitalPct = 0.80 // next cycle restarts at this share of original capital
	riskFreeRate   = 0.05
)

// PositionCloser unwinds a position at market
type PositionCloser interface {
	ClosePosition(ctx context.Context, pos domain.Position, reason string) error
}

// SnapshotSource supplies the portfolio value series for performance math
type SnapshotSource interface {
	Values(scenario string, since time.Time) ([]float64, error)
}

// AuditRecorder appends settlement steps to the trade journal
type AuditRecorder interface {
	Record(eventType, entityID string, afterState interface{}) error
}

// Settler runs the end-of-cycle pipeline: close what is open, measure,
// withdraw profits, and seed the next cycle.
type Settler struct {
	manager   *Manager
	positions *positions.Repository
	closer    PositionCloser
	snapshots SnapshotSource
	audit     AuditRecorder
	events    *events.Manager
	log       zerolog.Logger
}

// SettlerConfig wires the settler
type SettlerConfig struct {
	Manager   *Manager
	Positions *positions.Repository
	Closer    PositionCloser
	Snapshots SnapshotSource
	Audit     AuditRecorder
	Events    *events.Manager
	Log       zerolog.Logger
}

// NewSettler creates a new cycle settler
func NewSettler(cfg SettlerConfig) *Settler {
	return &Settler{
		manager:   cfg.Manager,
		positions: cfg.Positions,
		closer:    cfg.Closer,
		snapshots: cfg.Snapshots,
		audit:     cfg.Audit,
		events:    cfg.Events,
		log:       cfg.Log.With().Str("component", "settlement").Logger(),
	}
}

// SettlementResult reports what one settlement did
type SettlementResult struct {
	CycleID     string  `json:"cycle_id"`
	Closed      int     `json:"closed"`
	RealizedPnL float64 `json:"realized_pnl"`
	Withdrawn   float64 `json:"withdrawn"`
	NextCycleID string  `json:"next_cycle_id,omitempty"`
	NoOp        bool    `json:"no_op,omitempty"`
}

// Settle runs the full pipeline for one cycle. Settling an already
// completed cycle is a no-op. An active cycle that is too young or too
// thin refuses to settle.
func (s *Settler) Settle(ctx context.Context, cycle *domain.Cycle, scenario string, now time.Time, reason string) (SettlementResult, error) {
	result := SettlementResult{CycleID: cycle.CycleID}

	if cycle.Status == domain.CycleCompleted {
		result.NoOp = true
		return result, nil
	}

	day := DayInCycle(cycle, now)
	cyclePositions, err := s.positions.GetByCycle(cycle.CycleID)
	if err != nil {
		return result, fmt.Errorf("failed to load cycle positions: %w", err)
	}

	// Emergencies settle unconditionally; a calendar settlement must be
	// earned first.
	if reason != domain.CompletionEmergency {
		if day < MinSettlementDay {
			return result, fmt.Errorf("cycle %s is %d days old, settles at %d", cycle.CycleID, day, MinSettlementDay)
		}
		if len(cyclePositions) < MinPositions {
			return result, fmt.Errorf("cycle %s traded %d positions, settles at %d", cycle.CycleID, len(cyclePositions), MinPositions)
		}
	}
	s.record("SETTLEMENT_STARTED", cycle.CycleID, map[string]interface{}{
		"day": day, "reason": reason, "positions": len(cyclePositions),
	})

	// Step 1: unwind everything still open
	for _, pos := range cyclePositions {
		if pos.Status != domain.PositionOpen {
			continue
		}
		if err := s.closer.ClosePosition(ctx, pos, domain.CloseSettlement); err != nil {
			s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Settlement close failed")
			continue
		}
		result.Closed++
	}
	s.record("SETTLEMENT_POSITIONS_CLOSED", cycle.CycleID, map[string]interface{}{"closed": result.Closed})

	// Step 2: measure the cycle
	pnl, err := s.positions.RealizedPnLForCycle(cycle.CycleID)
	if err != nil {
		return result, fmt.Errorf("failed to compute realized pnl: %w", err)
	}
	result.RealizedPnL = pnl

	if values, err := s.snapshots.Values(scenario, cycle.StartDate); err == nil {
		cycle.SharpeRatio = formulas.CalculateSharpeFromValues(values, riskFreeRate)
	} else {
		s.log.Warn().Err(err).Msg("Sharpe computation skipped")
	}

	// Trade stats come from the post-unwind book, so settlement closes count
	settled, err := s.positions.GetByCycle(cycle.CycleID)
	if err != nil {
		return result, fmt.Errorf("failed to reload cycle positions: %w", err)
	}
	applyTradeStats(cycle, settled)

	if err := s.manager.UpdatePerformance(cycle, pnl); err != nil {
		return result, err
	}
	s.record("SETTLEMENT_PERFORMANCE", cycle.CycleID, map[string]interface{}{
		"realized_pnl": pnl,
		"return_pct":   cycle.ReturnPct,
		"win_rate":     cycle.WinRate,
		"closed":       cycle.PositionsClosed,
	})

	// Step 3: take half of any profit off the table
	if pnl > 0 {
		result.Withdrawn = pnl * withdrawPct
	}
	cycle.WithdrawnAmount = result.Withdrawn
	s.record("SETTLEMENT_WITHDRAWAL", cycle.CycleID, map[string]interface{}{"withdrawn": result.Withdrawn})

	// Step 4: complete the cycle
	completedAt := now.UTC()
	cycle.Status = domain.CycleCompleted
	cycle.CompletionReason = reason
	cycle.CompletedAt = &completedAt
	if err := s.manager.Repo().Update(*cycle); err != nil {
		return result, fmt.Errorf("failed to complete cycle: %w", err)
	}
	s.record("SETTLEMENT_COMPLETED", cycle.CycleID, map[string]interface{}{"reason": reason})

	s.events.Emit(events.CycleSettled, "cycles", map[string]interface{}{
		"cycle_id":     cycle.CycleID,
		"realized_pnl": pnl,
		"withdrawn":    result.Withdrawn,
		"reason":       reason,
	})

	// Step 5: seed the next cycle at reduced capital
	next, err := s.manager.CreateCycle(now, cycle.OriginalCapital*nextCapitalPct)
	if err != nil {
		return result, fmt.Errorf("failed to start next cycle: %w", err)
	}
	result.NextCycleID = next.CycleID

	s.log.Info().
		Str("cycle_id", cycle.CycleID).
		Float64("pnl", pnl).
		Float64("withdrawn", result.Withdrawn).
		Str("next_cycle", next.CycleID).
		Msg("Cycle settled")

	return result, nil
}

// applyTradeStats fills the cycle's per-trade statistics from its position
// book. AvgLoser is signed, so it reads as the typical realized loss.
func applyTradeStats(cycle *domain.Cycle, book []domain.Position) {
	cycle.PositionsOpened = len(book)

	var closed, winners int
	var winSum, lossSum float64
	for _, pos := range book {
		if pos.Status != domain.PositionClosed {
			continue
		}
		closed++
		if pos.RealizedPnL > 0 {
			winners++
			winSum += pos.RealizedPnL
		} else {
			lossSum += pos.RealizedPnL
		}
	}

	cycle.PositionsClosed = closed
	cycle.WinRate = 0
	cycle.AvgWinner = 0
	cycle.AvgLoser = 0
	if closed > 0 {
		cycle.WinRate = float64(winners) / float64(closed)
	}
	if winners > 0 {
		cycle.AvgWinner = winSum / float64(winners)
	}
	if losers := closed - winners; losers > 0 {
		cycle.AvgLoser = lossSum / float64(losers)
	}
}

func (s *Settler) record(eventType, entityID string, state map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(eventType, entityID, state); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("Failed to audit settlement step")
	}
}
