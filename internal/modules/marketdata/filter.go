package marketdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Filter thresholds
const (
	MinPrice           = 5.0       // reject penny stocks
	MinAvgVolumeUSD    = 5_000_000 // reject illiquid stocks
	MaxSpreadATRRatio  = 0.08      // reject wide-spread stocks
	EarningsBlackoutHi = 3         // reject if earnings within [-1, +3] days
	EarningsBlackoutLo = -1
)

// Filter applies market-data based quality gates to candidate signals
type Filter struct {
	provider *Provider
	log      zerolog.Logger
}

// NewFilter creates a new market data filter
func NewFilter(provider *Provider, log zerolog.Logger) *Filter {
	return &Filter{
		provider: provider,
		log:      log.With().Str("component", "market_filter").Logger(),
	}
}

// Check returns (false, reason) when a symbol fails a market data gate.
// Data failures pass the symbol through; structural rejection is the
// quality filter's job, not the data layer's.
func (f *Filter) Check(ctx context.Context, symbol string) (bool, string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return false, "INVALID_SYMBOL: empty symbol"
	}

	summary := f.provider.Summary(ctx, symbol)

	if summary.CurrentPrice > 0 && summary.CurrentPrice < MinPrice {
		return false, fmt.Sprintf("PRICE_TOO_LOW: $%.2f < $%.2f", summary.CurrentPrice, MinPrice)
	}

	if summary.AvgVolumeUSD < MinAvgVolumeUSD {
		return false, fmt.Sprintf("ILLIQUID: ADV $%.0f < $%d", summary.AvgVolumeUSD, MinAvgVolumeUSD)
	}

	if summary.ATR > 0 && summary.BidAskSpread > 0 {
		ratio := summary.BidAskSpread / summary.ATR
		if ratio > MaxSpreadATRRatio {
			return false, fmt.Sprintf("HIGH_SPREAD: spread/ATR %.3f > %.2f", ratio, MaxSpreadATRRatio)
		}
	}

	if d := summary.DaysToEarnings; d != nil && *d >= EarningsBlackoutLo && *d <= EarningsBlackoutHi {
		return false, fmt.Sprintf("EARNINGS_BLACKOUT: earnings in %d days", *d)
	}

	return true, ""
}
