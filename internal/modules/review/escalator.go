package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/broker"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/signals"
)

// Escalation hysteresis: the tier must jump this far and the signal must
// have survived this many cycles before a position gets re-rated.
const (
	MinTierDelta       = 2
	MinPersistedCycles = 2
)

// AuditRecorder appends escalations to the trade journal
type AuditRecorder interface {
	Record(eventType, entityID string, afterState interface{}) error
}

// Result summarizes one review pass
type Result struct {
	Reviewed  int `json:"reviewed"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// Escalator re-rates open positions whose underlying signal has climbed
// tiers and stuck around. The position is cycled through the broker but
// keeps its original entry price and round clock, so the upgrade changes
// conviction, not cost basis.
type Escalator struct {
	signals   *signals.SignalRepository
	positions *positions.Repository
	orders    *orders.Manager
	orderRepo *orders.Repository
	broker    broker.Broker
	audit     AuditRecorder
	events    *events.Manager
	log       zerolog.Logger
}

// Config wires the escalator
type Config struct {
	Signals   *signals.SignalRepository
	Positions *positions.Repository
	Orders    *orders.Manager
	OrderRepo *orders.Repository
	Broker    broker.Broker
	Audit     AuditRecorder
	Events    *events.Manager
	Log       zerolog.Logger
}

// NewEscalator creates a new review escalator
func NewEscalator(cfg Config) *Escalator {
	return &Escalator{
		signals:   cfg.Signals,
		positions: cfg.Positions,
		orders:    cfg.Orders,
		orderRepo: cfg.OrderRepo,
		broker:    cfg.Broker,
		audit:     cfg.Audit,
		events:    cfg.Events,
		log:       cfg.Log.With().Str("component", "review").Logger(),
	}
}

// Run executes one review pass for an account. Every ACTIVE signal ages
// by one cycle first; then each open position is checked against the
// freshest signal on its symbol. A failed escalation is skipped, the
// counters stay put, and the next pass tries again.
func (e *Escalator) Run(ctx context.Context, scenario string) (Result, error) {
	var result Result

	if _, err := e.signals.IncrementPersistedCycles(); err != nil {
		return result, fmt.Errorf("failed to age signals: %w", err)
	}

	open, err := e.positions.GetOpen(scenario)
	if err != nil {
		return result, fmt.Errorf("failed to load open positions: %w", err)
	}

	for _, pos := range open {
		result.Reviewed++

		latest, err := e.signals.LatestActiveFor(pos.Symbol, pos.Direction)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Signal lookup failed")
			result.Failed++
			continue
		}
		if latest == nil {
			continue
		}

		delta := latest.ConvictionTier.Value() - pos.ConvictionTier.Value()
		if delta < MinTierDelta || latest.PersistedCycles < MinPersistedCycles {
			continue
		}

		if err := e.escalate(ctx, pos, latest); err != nil {
			e.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Escalation failed")
			result.Failed++
			continue
		}
		result.Escalated++
	}

	if result.Escalated > 0 || result.Failed > 0 {
		e.log.Info().
			Int("reviewed", result.Reviewed).
			Int("escalated", result.Escalated).
			Int("failed", result.Failed).
			Msg("Review pass complete")
	}

	return result, nil
}

// escalate cycles the position through the broker and re-books it at the
// upgraded tier with its original entry price and round clock.
func (e *Escalator) escalate(ctx context.Context, pos domain.Position, latest *domain.Signal) error {
	if err := e.orders.ClosePosition(ctx, pos, domain.CloseEscalation); err != nil {
		return err
	}

	reentry := &domain.Order{
		Symbol:   pos.Symbol,
		Side:     domain.SideBuy,
		Type:     domain.OrderMarket,
		Qty:      pos.Shares,
		Scenario: pos.Scenario,
		Reason:   latest.SignalID,
	}
	if err := e.broker.SubmitOrder(ctx, reentry); err != nil {
		return fmt.Errorf("failed to re-enter %s: %w", pos.Symbol, err)
	}
	if reentry.Status != domain.OrderFilled {
		return fmt.Errorf("re-entry for %s rejected: %s", pos.Symbol, reentry.RejectReason)
	}

	upgraded := domain.Position{
		PositionID:     uuid.New().String(),
		Symbol:         pos.Symbol,
		Direction:      pos.Direction,
		EntryDate:      pos.EntryDate,
		EntryPrice:     pos.EntryPrice,
		Shares:         pos.Shares,
		EntryValue:     pos.EntryValue,
		ConvictionTier: latest.ConvictionTier,
		CycleID:        pos.CycleID,
		Scenario:       pos.Scenario,
		Status:         domain.PositionOpen,
		StopPrice:      pos.StopPrice,
		RoundStart:     pos.RoundStart,
		RoundExpiry:    pos.RoundExpiry,
	}

	reentry.PositionID = upgraded.PositionID
	if err := e.orderRepo.Insert(*reentry); err != nil {
		e.log.Error().Err(err).Str("order_id", reentry.OrderID).Msg("Failed to persist re-entry order")
	}
	if err := e.positions.Insert(upgraded); err != nil {
		return fmt.Errorf("failed to book upgraded position: %w", err)
	}

	if e.audit != nil {
		if err := e.audit.Record("POSITION_ESCALATED", upgraded.PositionID, upgraded); err != nil {
			e.log.Error().Err(err).Msg("Failed to audit escalation")
		}
	}
	e.events.Emit(events.PositionEscalated, "review", map[string]interface{}{
		"position_id": upgraded.PositionID,
		"replaces":    pos.PositionID,
		"symbol":      pos.Symbol,
		"from_tier":   string(pos.ConvictionTier),
		"to_tier":     string(latest.ConvictionTier),
	})

	e.log.Info().
		Str("symbol", pos.Symbol).
		Str("from", string(pos.ConvictionTier)).
		Str("to", string(latest.ConvictionTier)).
		Time("round_expiry", deref(pos.RoundExpiry)).
		Msg("Position escalated")

	return nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
