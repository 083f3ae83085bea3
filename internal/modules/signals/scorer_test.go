package signals

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/insider-trader/internal/domain"
)

type stubFilerHistory struct {
	stats *domain.FilerStats
}

func (s stubFilerHistory) Get(string, string) (*domain.FilerStats, error) {
	return s.stats, nil
}

type stubConsensus struct {
	count int
}

func (s stubConsensus) CountDistinctFilers(string, string, int) (int, error) {
	return s.count, nil
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	t.Run("missing date scores neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, RecencyScore(nil, now))
	})

	t.Run("same-day filing scores full", func(t *testing.T) {
		assert.InDelta(t, 1.0, RecencyScore(&now, now), 0.001)
	})

	t.Run("future dates clamp to today", func(t *testing.T) {
		future := now.AddDate(0, 0, 3)
		assert.InDelta(t, 1.0, RecencyScore(&future, now), 0.001)
	})

	t.Run("decay is monotonic", func(t *testing.T) {
		prev := 1.1
		for _, days := range []int{1, 5, 18, 45, 89} {
			d := now.AddDate(0, 0, -days)
			score := RecencyScore(&d, now)
			assert.Less(t, score, prev, "day %d", days)
			prev = score
		}
	})

	t.Run("window edge scores zero", func(t *testing.T) {
		old := now.AddDate(0, 0, -90)
		assert.InDelta(t, 0.0, RecencyScore(&old, now), 0.001)
	})
}

func TestSizeScore(t *testing.T) {
	assert.Equal(t, 1.0, SizeScore(25_000_000))
	assert.Equal(t, 1.0, SizeScore(10_000_000))
	assert.Equal(t, 0.8, SizeScore(1_000_000))
	assert.Equal(t, 0.5, SizeScore(250_000))
	assert.Equal(t, 0.3, SizeScore(10_000))
	assert.Equal(t, 0.1, SizeScore(5_000))
}

func TestConsensusScore(t *testing.T) {
	assert.Equal(t, 1.0, ConsensusScore(6))
	assert.Equal(t, 0.8, ConsensusScore(3))
	assert.Equal(t, 0.5, ConsensusScore(2))
	assert.Equal(t, 0.3, ConsensusScore(1))
	assert.Equal(t, 0.2, ConsensusScore(0))
}

func TestCompetenceFromHistory(t *testing.T) {
	t.Run("established filer uses win rate directly", func(t *testing.T) {
		assert.Equal(t, 0.72, CompetenceFromHistory(0.72, 12))
	})

	t.Run("thin history shrinks toward the prior", func(t *testing.T) {
		// 2 of 5 trades: 0.5 + (0.9-0.5)*(2/5) = 0.66
		assert.InDelta(t, 0.66, CompetenceFromHistory(0.9, 2), 0.001)
	})

	t.Run("zero trades is the prior", func(t *testing.T) {
		assert.Equal(t, 0.5, CompetenceFromHistory(0.0, 0))
	})
}

func TestRoleMultiplier(t *testing.T) {
	assert.Equal(t, 1.5, RoleMultiplier("Chief Executive Officer"))
	assert.Equal(t, 1.5, RoleMultiplier("CEO & Chairman"))
	assert.Equal(t, 1.4, RoleMultiplier("CFO"))
	assert.Equal(t, 1.3, RoleMultiplier("President"))
	assert.Equal(t, 1.2, RoleMultiplier("CTO"))
	assert.Equal(t, 1.2, RoleMultiplier("Chief Technology Officer"))
	assert.Equal(t, 1.0, RoleMultiplier("Director"))
	assert.Equal(t, 1.0, RoleMultiplier("Independent Director"))
	assert.Equal(t, 0.9, RoleMultiplier("VP of Sales"))
	assert.Equal(t, 0.7, RoleMultiplier(""))
	assert.Equal(t, 0.7, RoleMultiplier("10% Owner"))
}

func TestTotalScoreWeights(t *testing.T) {
	assert.InDelta(t, 1.0, WeightRecency+WeightSize+WeightCompetence+WeightConsensus+WeightRegime, 1e-9)

	// All-neutral inputs give the neutral composite
	assert.InDelta(t, 0.5, TotalScore(0.5, 0.5, 0.5, 0.5, 0.5), 0.001)
	assert.Equal(t, 1.0, TotalScore(1, 1, 1, 1, 1))
	assert.Equal(t, 0.0, TotalScore(0, 0, 0, 0, 0))
}

func TestAssignTier(t *testing.T) {
	assert.Equal(t, domain.TierS, AssignTier(0.80))
	assert.Equal(t, domain.TierA, AssignTier(0.79))
	assert.Equal(t, domain.TierA, AssignTier(0.65))
	assert.Equal(t, domain.TierB, AssignTier(0.64))
	assert.Equal(t, domain.TierB, AssignTier(0.50))
	assert.Equal(t, domain.TierC, AssignTier(0.49))
	assert.Equal(t, domain.TierC, AssignTier(0.35))
	assert.Equal(t, domain.TierReject, AssignTier(0.34))
}

func TestScorerScore(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	txDate := now.AddDate(0, 0, -1)

	t.Run("strong fresh signal lands in the top tiers", func(t *testing.T) {
		scorer := NewScorer(
			stubFilerHistory{stats: &domain.FilerStats{WinRate: 0.85, Trades: 20}},
			stubConsensus{count: 5},
			zerolog.Nop(),
		)

		sig := &domain.Signal{
			Symbol:           "ACME",
			Source:           domain.SourceForm4,
			FilerName:        "Jane Roe",
			FilerRole:        "CEO",
			TransactionDate:  &txDate,
			TransactionValue: 12_000_000,
		}
		scorer.Score(sig, now)

		assert.Equal(t, domain.SignalActive, sig.Status)
		assert.Contains(t, []domain.Tier{domain.TierS, domain.TierA}, sig.ConvictionTier)
		assert.Greater(t, sig.TotalScore, 0.65)
	})

	t.Run("recency keys off the filing date, not the trade", func(t *testing.T) {
		scorer := NewScorer(stubFilerHistory{}, stubConsensus{count: 1}, zerolog.Nop())

		oldTx := now.AddDate(0, 0, -40)
		filedYesterday := now.AddDate(0, 0, -1)
		sig := &domain.Signal{
			Symbol:           "ACME",
			Source:           domain.SourceCongress,
			FilerName:        "Sen. Smith",
			TransactionDate:  &oldTx,
			FilingDate:       &filedYesterday,
			TransactionValue: 50_000,
		}
		scorer.Score(sig, now)

		assert.Greater(t, sig.RecencyScore, 0.9)
	})

	t.Run("stale tiny signal is rejected", func(t *testing.T) {
		scorer := NewScorer(
			stubFilerHistory{stats: &domain.FilerStats{WinRate: 0.2, Trades: 30}},
			stubConsensus{count: 0},
			zerolog.Nop(),
		)

		old := now.AddDate(0, 0, -85)
		sig := &domain.Signal{
			Symbol:           "ACME",
			Source:           domain.SourceForm4,
			FilerName:        "John Doe",
			FilerRole:        "",
			TransactionDate:  &old,
			TransactionValue: 4_000,
		}
		scorer.Score(sig, now)

		assert.Equal(t, domain.SignalRejected, sig.Status)
		assert.Equal(t, domain.TierReject, sig.ConvictionTier)
		assert.Equal(t, "BELOW_TIER_THRESHOLD", sig.RejectionReason)
	})
}
