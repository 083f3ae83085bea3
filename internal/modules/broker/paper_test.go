package broker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/insider-trader/internal/domain"
)

type stubQuoter struct {
	quotes map[string]domain.Quote
}

func (s *stubQuoter) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	return s.quotes[symbol], nil
}

func newTestBroker(t *testing.T, cash float64, quotes map[string]domain.Quote) *Paper {
	t.Helper()

	var live LiveQuoter
	if quotes != nil {
		live = &stubQuoter{quotes: quotes}
	}

	p := NewPaper(PaperConfig{
		StartingCash: cash,
		SlippageBps:  10,
		Seed:         42,
		Live:         live,
		Log:          zerolog.Nop(),
	})
	require.NoError(t, p.Connect())
	return p
}

func TestBuyFillsAtAskPlusSlippage(t *testing.T) {
	p := newTestBroker(t, 10_000, map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Bid: 99.90, Ask: 100.10},
	})

	order := &domain.Order{Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 10}
	require.NoError(t, p.SubmitOrder(context.Background(), order))

	// mid = 100.00, slippage = 100 * 10 / 10000 = 0.10
	assert.Equal(t, domain.OrderFilled, order.Status)
	assert.InDelta(t, 100.20, order.FilledAvgPrice, 1e-9)
	assert.Equal(t, 1.00, order.Commission)

	cash, err := p.CashBalance()
	require.NoError(t, err)
	assert.InDelta(t, 10_000-100.20*10-1.00, cash, 1e-9)

	pos, err := p.Position("AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 10, pos.Qty)
	assert.InDelta(t, 100.20, pos.AvgCost, 1e-9)
}

func TestSellFillsAtBidMinusSlippage(t *testing.T) {
	p := newTestBroker(t, 10_000, map[string]domain.Quote{
		"MSFT": {Symbol: "MSFT", Bid: 199.80, Ask: 200.20},
	})

	buy := &domain.Order{Symbol: "MSFT", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 5}
	require.NoError(t, p.SubmitOrder(context.Background(), buy))

	sell := &domain.Order{Symbol: "MSFT", Side: domain.SideSell, Type: domain.OrderMarket, Qty: 5}
	require.NoError(t, p.SubmitOrder(context.Background(), sell))

	// mid = 200.00, slippage = 0.20, sell fill = 199.80 - 0.20
	assert.Equal(t, domain.OrderFilled, sell.Status)
	assert.InDelta(t, 199.60, sell.FilledAvgPrice, 1e-9)

	pos, err := p.Position("MSFT")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestBuyRejectedWhenCashInsufficient(t *testing.T) {
	p := newTestBroker(t, 500, map[string]domain.Quote{
		"NVDA": {Symbol: "NVDA", Bid: 99.90, Ask: 100.10},
	})

	order := &domain.Order{Symbol: "NVDA", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 10}
	require.NoError(t, p.SubmitOrder(context.Background(), order))

	assert.Equal(t, domain.OrderRejected, order.Status)
	assert.Equal(t, "INSUFFICIENT_CASH", order.RejectReason)

	// Rejection must not touch the account
	cash, err := p.CashBalance()
	require.NoError(t, err)
	assert.Equal(t, 500.0, cash)

	positions, err := p.Positions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSellRejectedWhenSharesInsufficient(t *testing.T) {
	p := newTestBroker(t, 10_000, map[string]domain.Quote{
		"TSLA": {Symbol: "TSLA", Bid: 99.90, Ask: 100.10},
	})

	buy := &domain.Order{Symbol: "TSLA", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 3}
	require.NoError(t, p.SubmitOrder(context.Background(), buy))

	sell := &domain.Order{Symbol: "TSLA", Side: domain.SideSell, Type: domain.OrderMarket, Qty: 5}
	require.NoError(t, p.SubmitOrder(context.Background(), sell))

	assert.Equal(t, domain.OrderRejected, sell.Status)
	assert.Equal(t, "INSUFFICIENT_SHARES", sell.RejectReason)

	pos, err := p.Position("TSLA")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 3, pos.Qty)
}

func TestWeightedAverageCostBasis(t *testing.T) {
	quotes := map[string]domain.Quote{
		"GOOG": {Symbol: "GOOG", Bid: 99.95, Ask: 100.05},
	}
	p := newTestBroker(t, 100_000, quotes)

	first := &domain.Order{Symbol: "GOOG", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 10}
	require.NoError(t, p.SubmitOrder(context.Background(), first))

	quotes["GOOG"] = domain.Quote{Symbol: "GOOG", Bid: 119.95, Ask: 120.05}
	second := &domain.Order{Symbol: "GOOG", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 10}
	require.NoError(t, p.SubmitOrder(context.Background(), second))

	pos, err := p.Position("GOOG")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 20, pos.Qty)
	assert.InDelta(t, (first.FilledAvgPrice*10+second.FilledAvgPrice*10)/20, pos.AvgCost, 1e-9)
}

func TestSimulatedQuotesAreDeterministic(t *testing.T) {
	a := newTestBroker(t, 10_000, nil)
	b := newTestBroker(t, 10_000, nil)

	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		qa, err := a.GetQuote(context.Background(), sym)
		require.NoError(t, err)
		qb, err := b.GetQuote(context.Background(), sym)
		require.NoError(t, err)

		assert.Equal(t, qa.Bid, qb.Bid)
		assert.Equal(t, qa.Ask, qb.Ask)
		assert.GreaterOrEqual(t, qa.Mid(), 95.0)
		assert.LessOrEqual(t, qa.Mid(), 105.0)
	}

	// Same symbol keeps the same quote for the broker's lifetime
	first, err := a.GetQuote(context.Background(), "AAA")
	require.NoError(t, err)
	again, err := a.GetQuote(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestSubmitRequiresConnection(t *testing.T) {
	p := NewPaper(PaperConfig{StartingCash: 1000, Seed: 1, Log: zerolog.Nop()})

	order := &domain.Order{Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 1}
	err := p.SubmitOrder(context.Background(), order)
	assert.ErrorIs(t, err, ErrNotConnected)
}
