package sizing

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// Position size bounds in dollars
const (
	MinPositionValue    = 500.0
	TargetPositionValue = 2000.0
	MaxPositionValue    = 5000.0
)

// Liquidity thresholds
const (
	MinDailyVolumeUSD = 1_000_000 // today's dollar volume floor
	MinAvgVolumeUSD   = 5_000_000 // 20-day ADV floor
	MaxSpreadATRRatio = 0.08
)

// Risk sizing parameters
const (
	atrRiskMultiple = 2.0  // stop distance in ATRs assumed for risk sizing
	riskBudgetPct   = 0.02 // portfolio fraction risked per position
)

// MarketData supplies the market snapshot used for sizing
type MarketData interface {
	Summary(ctx context.Context, symbol string) domain.MarketSummary
}

// Result is the outcome of sizing one candidate
type Result struct {
	Shares int     `json:"shares"`
	Value  float64 `json:"value"`
	ATR    float64 `json:"atr"`
	Reason string  `json:"reason,omitempty"` // set when Shares == 0
}

// Sizer computes share counts for allocation candidates
type Sizer struct {
	market MarketData
	log    zerolog.Logger
}

// NewSizer creates a new position sizer
func NewSizer(market MarketData, log zerolog.Logger) *Sizer {
	return &Sizer{
		market: market,
		log:    log.With().Str("component", "sizer").Logger(),
	}
}

// Size determines the share count for a candidate given available capital
// and the current phase size factor. A zero-share result carries the
// rejection reason.
func (s *Sizer) Size(ctx context.Context, symbol string, available float64, phaseFactor float64) Result {
	summary := s.market.Summary(ctx, symbol)

	return Compute(Inputs{
		Price:        summary.CurrentPrice,
		ATR:          summary.ATR,
		AvgVolumeUSD: summary.AvgVolumeUSD,
		Spread:       summary.BidAskSpread,
		Available:    available,
		PhaseFactor:  phaseFactor,
	})
}

// Inputs are the pure sizing inputs, separated for testability
type Inputs struct {
	Price        float64
	ATR          float64
	AvgVolumeUSD float64
	Spread       float64
	Available    float64
	PhaseFactor  float64
}

// Compute runs the liquidity checks and the three sizing legs.
// Final value = min(ATR leg, risk leg, available) * phase factor,
// clamped to the position bounds.
func Compute(in Inputs) Result {
	if in.Price <= 0 {
		return Result{Reason: "NO_PRICE"}
	}

	// Liquidity gates. Zero volume data means the check is skipped; a
	// data outage should not starve the allocator.
	if in.AvgVolumeUSD > 0 {
		if in.AvgVolumeUSD < MinDailyVolumeUSD {
			return Result{Reason: fmt.Sprintf("LOW_VOLUME: $%.0f", in.AvgVolumeUSD)}
		}
		if in.AvgVolumeUSD < MinAvgVolumeUSD {
			return Result{Reason: fmt.Sprintf("LOW_ADV: $%.0f", in.AvgVolumeUSD)}
		}
	}

	if in.ATR > 0 && in.Spread > 0 {
		if ratio := in.Spread / in.ATR; ratio > MaxSpreadATRRatio {
			return Result{Reason: fmt.Sprintf("WIDE_SPREAD: %.3f", ratio)}
		}
	}

	if in.Available < MinPositionValue {
		return Result{Reason: "INSUFFICIENT_CAPITAL"}
	}

	// ATR leg: volatile names get smaller slots
	atrValue := TargetPositionValue
	if in.ATR > 0 {
		atrValue = formulas.Clamp(100/in.ATR, 0.5, 2.0) * TargetPositionValue
	}

	// Risk leg: cap the dollar loss at the stop to the risk budget
	riskValue := math.MaxFloat64
	if in.ATR > 0 {
		riskPerShare := in.ATR * atrRiskMultiple
		riskValue = (in.Available * riskBudgetPct) / (riskPerShare / in.Price)
	}

	value := math.Min(atrValue, math.Min(riskValue, in.Available))
	value *= in.PhaseFactor
	value = formulas.Clamp(value, MinPositionValue, MaxPositionValue)

	shares := int(math.Floor(value / in.Price))
	if shares < 1 {
		shares = 1
	}

	return Result{
		Shares: shares,
		Value:  float64(shares) * in.Price,
		ATR:    in.ATR,
	}
}
