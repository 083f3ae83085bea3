package review

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/philosophy"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/pkg/formulas"
)

const sweepRiskFreeRate = 0.05

// SnapshotSource supplies the portfolio value series for the Saylor rule
type SnapshotSource interface {
	Values(scenario string, since time.Time) ([]float64, error)
}

// SweepResult reports what one lifecycle sweep did
type SweepResult struct {
	Stopped  int `json:"stopped"`
	Expired  int `json:"expired"`
	Extended int `json:"extended"`
	Stagnant int `json:"stagnant"`
}

// Sweeper enforces per-position lifecycle rules: ATR stops, round
// expiry with Saylor extensions, and O'Leary stagnation closes.
type Sweeper struct {
	positions  *positions.Repository
	orders     *orders.Manager
	philosophy *philosophy.Engine
	snapshots  SnapshotSource
	log        zerolog.Logger
}

// NewSweeper creates a new lifecycle sweeper
func NewSweeper(pos *positions.Repository, om *orders.Manager, eng *philosophy.Engine, snaps SnapshotSource, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		positions:  pos,
		orders:     om,
		philosophy: eng,
		snapshots:  snaps,
		log:        log.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps every open position in an account once. Close failures are
// logged and retried on the next sweep.
func (s *Sweeper) Run(ctx context.Context, scenario string, now time.Time) (SweepResult, error) {
	var result SweepResult

	open, err := s.positions.GetOpen(scenario)
	if err != nil {
		return result, fmt.Errorf("failed to load open positions: %w", err)
	}

	for _, pos := range open {
		if s.stopBreached(pos) {
			if err := s.orders.ClosePosition(ctx, pos, domain.CloseStopLoss); err != nil {
				s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Stop-loss close failed")
				continue
			}
			result.Stopped++
			continue
		}

		if pos.RoundExpiry != nil && now.After(*pos.RoundExpiry) {
			extended, err := s.handleExpiry(ctx, pos, scenario)
			if err != nil {
				s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Expiry handling failed")
				continue
			}
			if extended {
				result.Extended++
			} else {
				result.Expired++
			}
			continue
		}

		heldDays := int(now.Sub(pos.EntryDate).Hours() / 24)
		stagnant, err := s.philosophy.ShouldForceClose(scenario, heldDays, pos.ReturnPct())
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Stagnation check failed")
			continue
		}
		if stagnant {
			if err := s.orders.ClosePosition(ctx, pos, domain.CloseStagnant); err != nil {
				s.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("Stagnation close failed")
				continue
			}
			result.Stagnant++
		}
	}

	if result.Stopped+result.Expired+result.Extended+result.Stagnant > 0 {
		s.log.Info().
			Int("stopped", result.Stopped).
			Int("expired", result.Expired).
			Int("extended", result.Extended).
			Int("stagnant", result.Stagnant).
			Msg("Lifecycle sweep complete")
	}

	return result, nil
}

// handleExpiry either extends a strong winner's round or closes it out.
// Returns true when the round was extended.
func (s *Sweeper) handleExpiry(ctx context.Context, pos domain.Position, scenario string) (bool, error) {
	var sharpe *float64
	since := pos.EntryDate
	if pos.RoundStart != nil {
		since = *pos.RoundStart
	}
	if values, err := s.snapshots.Values(scenario, since); err == nil {
		sharpe = formulas.CalculateSharpeFromValues(values, sweepRiskFreeRate)
	}

	extension, err := s.philosophy.ExtensionDays(scenario, sharpe, pos.ConvictionTier)
	if err != nil {
		return false, err
	}

	if extension > 0 {
		newExpiry := pos.RoundExpiry.AddDate(0, 0, extension)
		if err := s.positions.UpdateRoundExpiry(pos.PositionID, newExpiry); err != nil {
			return false, err
		}
		s.log.Info().
			Str("symbol", pos.Symbol).
			Time("new_expiry", newExpiry).
			Msg("Round extended")
		return true, nil
	}

	return false, s.orders.ClosePosition(ctx, pos, domain.CloseExpiry)
}

// stopBreached reports whether the last mark crossed the stop
func (s *Sweeper) stopBreached(pos domain.Position) bool {
	if pos.StopPrice <= 0 || pos.CurrentPrice <= 0 {
		return false
	}
	if pos.Direction == domain.DirectionShort {
		return pos.CurrentPrice >= pos.StopPrice
	}
	return pos.CurrentPrice <= pos.StopPrice
}
