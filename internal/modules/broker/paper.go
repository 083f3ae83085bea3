package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
)

// Commission charged per fill, flat
var commission = decimal.NewFromFloat(1.00)

// LiveQuoter supplies real quotes when a market data feed is configured
type LiveQuoter interface {
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
}

// PaperConfig configures the paper broker
type PaperConfig struct {
	StartingCash float64
	SlippageBps  float64
	Seed         int64
	Live         LiveQuoter // optional
	Cache        QuoteCache // optional
	Events       *events.Manager
	Log          zerolog.Logger
}

type holding struct {
	qty       int
	totalCost decimal.Decimal // cost basis, commissions excluded
}

// Paper is an in-memory simulated broker. All money arithmetic runs on
// decimals so repeated fills never accumulate float drift. Rejected
// orders leave cash and holdings untouched.
type Paper struct {
	slippageBps decimal.Decimal
	live        LiveQuoter
	cache       QuoteCache
	events      *events.Manager
	log         zerolog.Logger

	mu        sync.Mutex
	connected bool
	cash      decimal.Decimal
	holdings  map[string]*holding
	orders    map[string]domain.Order
	rng       *rand.Rand
	simQuotes map[string]domain.Quote
}

// NewPaper creates a paper broker with the given starting cash
func NewPaper(cfg PaperConfig) *Paper {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Paper{
		slippageBps: decimal.NewFromFloat(cfg.SlippageBps),
		live:        cfg.Live,
		cache:       cfg.Cache,
		events:      cfg.Events,
		log:         cfg.Log.With().Str("component", "paper_broker").Logger(),
		cash:        decimal.NewFromFloat(cfg.StartingCash),
		holdings:    make(map[string]*holding),
		orders:      make(map[string]domain.Order),
		rng:         rand.New(rand.NewSource(seed)),
		simQuotes:   make(map[string]domain.Quote),
	}
}

// Connect marks the broker connected
func (p *Paper) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	p.log.Info().Str("cash", p.cash.StringFixed(2)).Msg("Paper broker connected")
	return nil
}

// Disconnect marks the broker disconnected
func (p *Paper) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// IsConnected reports the connection state
func (p *Paper) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// CashBalance returns the current settled cash
func (p *Paper) CashBalance() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, _ := p.cash.Float64()
	return f, nil
}

// AccountValue returns cash plus holdings marked at the quote midpoint
func (p *Paper) AccountValue(ctx context.Context) (float64, error) {
	p.mu.Lock()
	symbols := make([]string, 0, len(p.holdings))
	for sym := range p.holdings {
		symbols = append(symbols, sym)
	}
	total := p.cash
	p.mu.Unlock()

	for _, sym := range symbols {
		quote, err := p.GetQuote(ctx, sym)
		if err != nil {
			return 0, fmt.Errorf("failed to mark %s: %w", sym, err)
		}

		p.mu.Lock()
		if h, ok := p.holdings[sym]; ok {
			total = total.Add(decimal.NewFromFloat(quote.Mid()).Mul(decimal.NewFromInt(int64(h.qty))))
		}
		p.mu.Unlock()
	}

	f, _ := total.Float64()
	return f, nil
}

// Positions returns all current holdings
func (p *Paper) Positions() ([]Holding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Holding, 0, len(p.holdings))
	for sym, h := range p.holdings {
		avg, _ := h.totalCost.Div(decimal.NewFromInt(int64(h.qty))).Float64()
		out = append(out, Holding{Symbol: sym, Qty: h.qty, AvgCost: avg})
	}
	return out, nil
}

// Position returns the holding for one symbol, nil when flat
func (p *Paper) Position(symbol string) (*Holding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holdings[symbol]
	if !ok {
		return nil, nil
	}
	avg, _ := h.totalCost.Div(decimal.NewFromInt(int64(h.qty))).Float64()
	return &Holding{Symbol: symbol, Qty: h.qty, AvgCost: avg}, nil
}

// GetQuote returns a quote for the symbol, preferring the live feed, then
// the cache, then a simulated quote. Live quotes refresh the cache.
func (p *Paper) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if p.live != nil {
		quote, err := p.live.GetQuote(ctx, symbol)
		if err == nil && quote.Mid() > 0 {
			if p.cache != nil {
				if cerr := p.cache.Put(quote); cerr != nil {
					p.log.Warn().Err(cerr).Str("symbol", symbol).Msg("Failed to cache quote")
				}
			}
			return quote, nil
		}
		if err != nil {
			p.log.Debug().Err(err).Str("symbol", symbol).Msg("Live quote unavailable")
		}
	}

	if p.cache != nil {
		cached, err := p.cache.Get(symbol)
		if err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Quote cache read failed")
		} else if cached != nil && cached.Mid() > 0 {
			return *cached, nil
		}
	}

	return p.simulatedQuote(symbol), nil
}

// simulatedQuote generates a stable pseudo-random quote per symbol.
// Mid is uniform in [95, 105] with a 0.1% spread. The same symbol keeps
// the same quote for the lifetime of the broker, and the same seed
// reproduces the same sequence.
func (p *Paper) simulatedQuote(symbol string) domain.Quote {
	p.mu.Lock()
	defer p.mu.Unlock()

	if quote, ok := p.simQuotes[symbol]; ok {
		return quote
	}

	mid := 100.0 * (0.95 + 0.10*p.rng.Float64())
	spread := 0.001 * mid
	quote := domain.Quote{
		Symbol:    symbol,
		Bid:       mid - spread/2,
		Ask:       mid + spread/2,
		Timestamp: time.Now().UTC(),
	}
	p.simQuotes[symbol] = quote
	return quote
}

// SubmitOrder fills or rejects the order against the current quote.
// Buys fill at ask plus slippage, sells at bid minus slippage, where
// slippage is mid * bps / 10000. A rejection records the reason on the
// order and changes nothing else.
func (p *Paper) SubmitOrder(ctx context.Context, order *domain.Order) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	if order.OrderID == "" {
		order.OrderID = uuid.New().String()
	}
	order.SubmittedAt = time.Now().UTC()

	quote, err := p.GetQuote(ctx, order.Symbol)
	if err != nil {
		return fmt.Errorf("failed to quote %s: %w", order.Symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	mid := decimal.NewFromFloat(quote.Mid())
	slip := mid.Mul(p.slippageBps).Div(decimal.NewFromInt(10000))

	var fill decimal.Decimal
	switch order.Side {
	case domain.SideBuy:
		fill = decimal.NewFromFloat(quote.Ask).Add(slip)
	case domain.SideSell:
		fill = decimal.NewFromFloat(quote.Bid).Sub(slip)
	default:
		return fmt.Errorf("unknown order side %q", order.Side)
	}

	if order.Type == domain.OrderLimit {
		limit := decimal.NewFromFloat(order.LimitPrice)
		if order.Side == domain.SideBuy && fill.GreaterThan(limit) {
			p.reject(order, "LIMIT_NOT_MARKETABLE")
			return nil
		}
		if order.Side == domain.SideSell && fill.LessThan(limit) {
			p.reject(order, "LIMIT_NOT_MARKETABLE")
			return nil
		}
	}

	qty := decimal.NewFromInt(int64(order.Qty))

	switch order.Side {
	case domain.SideBuy:
		cost := fill.Mul(qty).Add(commission)
		if cost.GreaterThan(p.cash) {
			p.reject(order, "INSUFFICIENT_CASH")
			return nil
		}

		p.cash = p.cash.Sub(cost)
		h, ok := p.holdings[order.Symbol]
		if !ok {
			h = &holding{}
			p.holdings[order.Symbol] = h
		}
		h.qty += order.Qty
		h.totalCost = h.totalCost.Add(fill.Mul(qty))

	case domain.SideSell:
		h, ok := p.holdings[order.Symbol]
		if !ok || h.qty < order.Qty {
			p.reject(order, "INSUFFICIENT_SHARES")
			return nil
		}

		proceeds := fill.Mul(qty).Sub(commission)
		p.cash = p.cash.Add(proceeds)

		// Reduce the cost basis at the weighted average
		avg := h.totalCost.Div(decimal.NewFromInt(int64(h.qty)))
		h.totalCost = h.totalCost.Sub(avg.Mul(qty))
		h.qty -= order.Qty
		if h.qty == 0 {
			delete(p.holdings, order.Symbol)
		}
	}

	now := time.Now().UTC()
	order.Status = domain.OrderFilled
	order.FilledAvgPrice, _ = fill.Float64()
	order.Commission, _ = commission.Float64()
	order.FilledAt = &now
	p.orders[order.OrderID] = *order

	p.log.Info().
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int("qty", order.Qty).
		Float64("fill", order.FilledAvgPrice).
		Msg("Order filled")

	if p.events != nil {
		p.events.Emit(events.OrderFilled, "broker", map[string]interface{}{
			"order_id": order.OrderID,
			"symbol":   order.Symbol,
			"side":     order.Side,
			"qty":      order.Qty,
			"fill":     order.FilledAvgPrice,
		})
	}

	return nil
}

// reject records a rejection without touching cash or holdings.
// Caller holds the lock.
func (p *Paper) reject(order *domain.Order, reason string) {
	order.Status = domain.OrderRejected
	order.RejectReason = reason
	p.orders[order.OrderID] = *order

	p.log.Warn().
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("reason", reason).
		Msg("Order rejected")

	if p.events != nil {
		p.events.Emit(events.OrderRejected, "broker", map[string]interface{}{
			"order_id": order.OrderID,
			"symbol":   order.Symbol,
			"reason":   reason,
		})
	}
}

// CancelOrder cancels a resting order. Paper fills are immediate, so
// only already-terminal orders exist; cancelling one is an error.
func (p *Paper) CancelOrder(orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	if order.Status == domain.OrderFilled {
		return fmt.Errorf("order %s already filled", orderID)
	}
	order.Status = domain.OrderCancelled
	p.orders[orderID] = order
	return nil
}

// OrderStatus returns the status of a previously submitted order
func (p *Paper) OrderStatus(orderID string) (domain.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return "", ErrUnknownOrder
	}
	return order.Status, nil
}
