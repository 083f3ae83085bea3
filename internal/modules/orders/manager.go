package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/broker"
	"github.com/aristath/insider-trader/internal/modules/positions"
)

// AuditRecorder appends an entry to the tamper-evident trade log
type AuditRecorder interface {
	Record(eventType, entityID string, afterState interface{}) error
}

// EntryRequest describes one position the allocator wants opened
type EntryRequest struct {
	Scenario    string
	Symbol      string
	Direction   string
	Shares      int
	Tier        domain.Tier
	CycleID     string
	SignalID    string
	StopPrice   float64
	RoundStart  *time.Time
	RoundExpiry *time.Time
}

// Manager turns allocation decisions into broker orders and keeps the
// position book consistent with the fills.
type Manager struct {
	broker    broker.Broker
	orders    *Repository
	positions *positions.Repository
	audit     AuditRecorder
	events    *events.Manager
	log       zerolog.Logger
}

// ManagerConfig wires the order manager
type ManagerConfig struct {
	Broker    broker.Broker
	Orders    *Repository
	Positions *positions.Repository
	Audit     AuditRecorder
	Events    *events.Manager
	Log       zerolog.Logger
}

// NewManager creates a new order manager
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		broker:    cfg.Broker,
		orders:    cfg.Orders,
		positions: cfg.Positions,
		audit:     cfg.Audit,
		events:    cfg.Events,
		log:       cfg.Log.With().Str("component", "orders").Logger(),
	}
}

// Broker exposes the account's broker for valuation reads
func (m *Manager) Broker() broker.Broker {
	return m.broker
}

// OpenPosition submits the entry order and, on a fill, books the
// position at the actual fill price. A broker rejection returns a nil
// position without error; the caller decides whether to move on.
func (m *Manager) OpenPosition(ctx context.Context, req EntryRequest) (*domain.Position, error) {
	// The paper broker is long-only: a SHORT entry would need a SELL open
	// and a BUY cover it cannot book. Refuse up front instead of silently
	// buying the wrong side.
	if req.Direction == domain.DirectionShort {
		return nil, fmt.Errorf("short entry for %s not supported: broker is long-only", req.Symbol)
	}

	order := &domain.Order{
		Symbol:   req.Symbol,
		Side:     domain.SideBuy,
		Type:     domain.OrderMarket,
		Qty:      req.Shares,
		Scenario: req.Scenario,
		Reason:   req.SignalID,
	}

	if err := m.broker.SubmitOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to submit entry order for %s: %w", req.Symbol, err)
	}

	if order.Status != domain.OrderFilled {
		if err := m.orders.Insert(*order); err != nil {
			m.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to persist rejected order")
		}
		m.log.Warn().
			Str("symbol", req.Symbol).
			Str("reason", order.RejectReason).
			Msg("Entry order rejected")
		return nil, nil
	}

	position := domain.Position{
		PositionID:     uuid.New().String(),
		Symbol:         req.Symbol,
		Direction:      req.Direction,
		EntryDate:      time.Now().UTC(),
		EntryPrice:     order.FilledAvgPrice,
		Shares:         req.Shares,
		EntryValue:     order.FilledAvgPrice * float64(req.Shares),
		ConvictionTier: req.Tier,
		CycleID:        req.CycleID,
		Scenario:       req.Scenario,
		Status:         domain.PositionOpen,
		StopPrice:      req.StopPrice,
		RoundStart:     req.RoundStart,
		RoundExpiry:    req.RoundExpiry,
	}

	order.PositionID = position.PositionID
	if err := m.orders.Insert(*order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}
	if err := m.positions.Insert(position); err != nil {
		return nil, fmt.Errorf("failed to persist position: %w", err)
	}

	if m.audit != nil {
		if err := m.audit.Record("POSITION_OPENED", position.PositionID, position); err != nil {
			m.log.Error().Err(err).Msg("Failed to audit position open")
		}
	}
	m.events.Emit(events.PositionOpened, "orders", map[string]interface{}{
		"position_id": position.PositionID,
		"symbol":      position.Symbol,
		"shares":      position.Shares,
		"entry_price": position.EntryPrice,
		"scenario":    position.Scenario,
	})

	return &position, nil
}

// ClosePosition submits the exit order and, on a fill, closes the
// position with its realized pnl and the given reason.
func (m *Manager) ClosePosition(ctx context.Context, pos domain.Position, reason string) error {
	order := &domain.Order{
		PositionID: pos.PositionID,
		Symbol:     pos.Symbol,
		Side:       domain.SideSell,
		Type:       domain.OrderMarket,
		Qty:        pos.Shares,
		Scenario:   pos.Scenario,
		Reason:     reason,
	}

	if err := m.broker.SubmitOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to submit exit order for %s: %w", pos.Symbol, err)
	}

	if err := m.orders.Insert(*order); err != nil {
		m.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to persist exit order")
	}

	if order.Status != domain.OrderFilled {
		return fmt.Errorf("exit order for %s rejected: %s", pos.Symbol, order.RejectReason)
	}

	pnl := (order.FilledAvgPrice - pos.EntryPrice) * float64(pos.Shares)
	if pos.Direction == domain.DirectionShort {
		pnl = -pnl
	}

	if err := m.positions.Close(pos.PositionID, order.FilledAvgPrice, pnl, reason); err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}

	if m.audit != nil {
		closed := pos
		now := time.Now().UTC()
		closed.Status = domain.PositionClosed
		closed.ExitDate = &now
		closed.ExitPrice = order.FilledAvgPrice
		closed.RealizedPnL = pnl
		closed.CloseReason = reason
		if err := m.audit.Record("POSITION_CLOSED", pos.PositionID, closed); err != nil {
			m.log.Error().Err(err).Msg("Failed to audit position close")
		}
	}
	m.events.Emit(events.PositionClosed, "orders", map[string]interface{}{
		"position_id":  pos.PositionID,
		"symbol":       pos.Symbol,
		"realized_pnl": pnl,
		"reason":       reason,
		"scenario":     pos.Scenario,
	})

	m.log.Info().
		Str("symbol", pos.Symbol).
		Float64("pnl", pnl).
		Str("reason", reason).
		Msg("Position closed")

	return nil
}

// EmergencyLiquidation closes every open position in an account.
// Individual failures are logged and skipped so one bad symbol cannot
// block the rest of the unwind.
func (m *Manager) EmergencyLiquidation(ctx context.Context, scenario string) (int, error) {
	open, err := m.positions.GetOpen(scenario)
	if err != nil {
		return 0, fmt.Errorf("failed to load open positions: %w", err)
	}

	closed := 0
	for _, pos := range open {
		if err := m.ClosePosition(ctx, pos, domain.CloseEmergency); err != nil {
			m.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Emergency close failed")
			continue
		}
		closed++
	}

	m.log.Warn().
		Int("closed", closed).
		Int("total", len(open)).
		Str("scenario", scenario).
		Msg("Emergency liquidation complete")

	return closed, nil
}

// MarkToMarket refreshes current prices on all open positions in an
// account from the broker's quotes.
func (m *Manager) MarkToMarket(ctx context.Context, scenario string) error {
	open, err := m.positions.GetOpen(scenario)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}

	for _, pos := range open {
		quote, err := m.broker.GetQuote(ctx, pos.Symbol)
		if err != nil {
			m.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Mark-to-market quote failed")
			continue
		}
		if err := m.positions.UpdatePrice(pos.PositionID, quote.Mid()); err != nil {
			m.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to update mark")
		}
	}

	return nil
}
