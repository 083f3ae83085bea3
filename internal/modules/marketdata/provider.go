package marketdata

import (
	"context"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// DataClient is the upstream market data API surface the provider needs
type DataClient interface {
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)
	GetDailyBars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error)
}

// DefaultVolumeUSD is returned when no volume data is available at all,
// so a data outage does not mass-reject every signal.
const DefaultVolumeUSD = 10_000_000.0

// mock rows for well-known symbols, used when the data API is unreachable
type mockEntry struct {
	price  float64
	volume float64
	atr    float64
	spread float64
}

var mockData = map[string]mockEntry{
	"AAPL":  {price: 150.0, volume: 50_000_000, atr: 3.5, spread: 0.05},
	"MSFT":  {price: 300.0, volume: 30_000_000, atr: 4.2, spread: 0.08},
	"GOOGL": {price: 2800.0, volume: 20_000_000, atr: 25.0, spread: 0.15},
	"TSLA":  {price: 800.0, volume: 40_000_000, atr: 15.0, spread: 0.12},
	"NVDA":  {price: 450.0, volume: 35_000_000, atr: 8.5, spread: 0.10},
}

// Provider fetches price, volume and volatility data for filters and sizing
type Provider struct {
	client DataClient
	log    zerolog.Logger
}

// NewProvider creates a new market data provider
func NewProvider(client DataClient, log zerolog.Logger) *Provider {
	return &Provider{
		client: client,
		log:    log.With().Str("component", "marketdata").Logger(),
	}
}

// CurrentPrice returns the quote midpoint for a symbol, or 0 when unknown
func (p *Provider) CurrentPrice(ctx context.Context, symbol string) float64 {
	quote, err := p.client.GetQuote(ctx, symbol)
	if err == nil && quote.Mid() > 0 {
		return quote.Mid()
	}

	if mock, ok := mockData[symbol]; ok {
		return mock.price
	}
	return 0
}

// AvgDailyVolumeUSD returns the mean dollar volume over the last 20 trading
// days. Falls back to mock data, then to a permissive default.
func (p *Provider) AvgDailyVolumeUSD(ctx context.Context, symbol string) float64 {
	bars, err := p.client.GetDailyBars(ctx, symbol, 20)
	if err == nil && len(bars) > 0 {
		var total float64
		for _, b := range bars {
			total += float64(b.Volume) * b.Close
		}
		return total / float64(len(bars))
	}

	if mock, ok := mockData[symbol]; ok {
		return mock.volume
	}

	p.log.Warn().Str("symbol", symbol).Msg("No volume data, using permissive default")
	return DefaultVolumeUSD
}

// ATR returns the Average True Range over the given period
func (p *Provider) ATR(ctx context.Context, symbol string, period int) float64 {
	bars, err := p.client.GetDailyBars(ctx, symbol, period+5)
	if err == nil && len(bars) > period {
		high := make([]float64, len(bars))
		low := make([]float64, len(bars))
		closes := make([]float64, len(bars))
		for i, b := range bars {
			high[i] = b.High
			low[i] = b.Low
			closes[i] = b.Close
		}

		atr := talib.Atr(high, low, closes, period)
		if len(atr) > 0 && atr[len(atr)-1] > 0 {
			return atr[len(atr)-1]
		}
	}

	if mock, ok := mockData[symbol]; ok {
		return mock.atr
	}
	return 0
}

// BidAskSpread returns the current bid/ask spread
func (p *Provider) BidAskSpread(ctx context.Context, symbol string) float64 {
	quote, err := p.client.GetQuote(ctx, symbol)
	if err == nil && quote.Spread() > 0 {
		return quote.Spread()
	}

	if mock, ok := mockData[symbol]; ok {
		return mock.spread
	}
	return 0
}

// DaysToNextEarnings returns days until the next earnings announcement.
// Nil means no earnings data, which disables the blackout filter.
// TODO: wire an earnings calendar source; nothing free and stable found yet.
func (p *Provider) DaysToNextEarnings(ctx context.Context, symbol string) *int {
	return nil
}

// Summary gathers the full market data snapshot for one symbol
func (p *Provider) Summary(ctx context.Context, symbol string) domain.MarketSummary {
	return domain.MarketSummary{
		Symbol:         symbol,
		CurrentPrice:   p.CurrentPrice(ctx, symbol),
		AvgVolumeUSD:   p.AvgDailyVolumeUSD(ctx, symbol),
		ATR:            p.ATR(ctx, symbol, 14),
		BidAskSpread:   p.BidAskSpread(ctx, symbol),
		DaysToEarnings: p.DaysToNextEarnings(ctx, symbol),
		Timestamp:      time.Now().UTC(),
	}
}
