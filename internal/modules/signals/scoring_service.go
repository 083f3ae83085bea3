package signals

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
)

// ScoringResult summarizes one scoring run
type ScoringResult struct {
	Scored   int `json:"scored"`
	Rejected int `json:"rejected"`
}

// ScoringService promotes PENDING signals to ACTIVE or REJECTED
type ScoringService struct {
	repo   *SignalRepository
	scorer *Scorer
	events *events.Manager
	log    zerolog.Logger
}

// NewScoringService creates a new scoring service
func NewScoringService(repo *SignalRepository, scorer *Scorer, ev *events.Manager, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		repo:   repo,
		scorer: scorer,
		events: ev,
		log:    log.With().Str("service", "scoring").Logger(),
	}
}

// ScorePending scores every PENDING signal
func (s *ScoringService) ScorePending() (ScoringResult, error) {
	var result ScoringResult
	now := time.Now().UTC()

	pending, err := s.repo.GetByStatus(domain.SignalPending, 500)
	if err != nil {
		return result, err
	}

	for i := range pending {
		sig := &pending[i]
		s.scorer.Score(sig, now)

		if err := s.repo.UpdateScores(*sig); err != nil {
			s.log.Warn().Err(err).Str("signal_id", sig.SignalID).Msg("Score update failed")
			continue
		}

		if sig.Status == domain.SignalRejected {
			result.Rejected++
			s.events.Emit(events.SignalRejected, "signals", map[string]interface{}{
				"signal_id": sig.SignalID,
				"score":     sig.TotalScore,
			})
		} else {
			result.Scored++
			s.events.Emit(events.SignalScored, "signals", map[string]interface{}{
				"signal_id": sig.SignalID,
				"symbol":    sig.Symbol,
				"score":     sig.TotalScore,
				"tier":      string(sig.ConvictionTier),
			})
		}
	}

	s.log.Info().
		Int("scored", result.Scored).
		Int("rejected", result.Rejected).
		Msg("Signal scoring complete")

	return result, nil
}

// ExpireStale expires ACTIVE unconsumed signals older than maxAgeDays
func (s *ScoringService) ExpireStale(maxAgeDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	expired, err := s.repo.MarkExpired(cutoff)
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		s.log.Info().Int64("expired", expired).Msg("Stale signals expired")
		s.events.Emit(events.SignalExpired, "signals", map[string]interface{}{
			"count": expired,
		})
	}

	return expired, nil
}
