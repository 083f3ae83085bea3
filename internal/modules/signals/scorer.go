package signals

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/pkg/formulas"
)

// Factor weights. Must sum to 1.0.
const (
	WeightRecency    = 0.25
	WeightSize       = 0.20
	WeightCompetence = 0.30
	WeightConsensus  = 0.15
	WeightRegime     = 0.10
)

// Tier thresholds on the composite score
const (
	TierSMin = 0.80
	TierAMin = 0.65
	TierBMin = 0.50
	TierCMin = 0.35
)

// Recency decay: half-life of 18 days on top of a 90-day linear window
const recencyHalfLifeDays = 18.0

// consensusLookbackDays bounds the co-filer window
const consensusLookbackDays = 30

// FilerHistory provides historical filer hit rates
type FilerHistory interface {
	Get(filerName, source string) (*domain.FilerStats, error)
}

// ConsensusCounter counts distinct co-filers for a symbol
type ConsensusCounter interface {
	CountDistinctFilers(symbol, source string, lookbackDays int) (int, error)
}

// Scorer computes composite conviction scores for signals
type Scorer struct {
	filers    FilerHistory
	consensus ConsensusCounter
	log       zerolog.Logger
}

// NewScorer creates a new signal scorer
func NewScorer(filers FilerHistory, consensus ConsensusCounter, log zerolog.Logger) *Scorer {
	return &Scorer{
		filers:    filers,
		consensus: consensus,
		log:       log.With().Str("component", "scorer").Logger(),
	}
}

// Score fills in all factor scores, the composite score, the tier and the
// resulting status on the signal.
func (s *Scorer) Score(sig *domain.Signal, now time.Time) {
	sig.RecencyScore = RecencyScore(disclosureDate(sig), now)
	sig.SizeScore = SizeScore(sig.TransactionValue)
	sig.CompetenceScore = s.competenceScore(sig)
	sig.ConsensusScore = s.consensusScore(sig)
	sig.RegimeScore = RegimeScore()

	sig.TotalScore = TotalScore(
		sig.RecencyScore, sig.SizeScore, sig.CompetenceScore,
		sig.ConsensusScore, sig.RegimeScore,
	)
	sig.ConvictionTier = AssignTier(sig.TotalScore)

	if sig.ConvictionTier == domain.TierReject {
		sig.Status = domain.SignalRejected
		sig.RejectionReason = "BELOW_TIER_THRESHOLD"
	} else {
		sig.Status = domain.SignalActive
	}
}

// disclosureDate is the date the market learned about a trade. Congress
// disclosures lag the transaction by weeks, so recency keys off the filing
// date and falls back to the transaction date only when no filing date was
// reported.
func disclosureDate(sig *domain.Signal) *time.Time {
	if sig.FilingDate != nil {
		return sig.FilingDate
	}
	return sig.TransactionDate
}

// RecencyScore combines a 90-day linear window with exponential decay.
// A missing transaction date scores a neutral 0.5.
func RecencyScore(txDate *time.Time, now time.Time) float64 {
	if txDate == nil {
		return 0.5
	}

	days := now.Sub(*txDate).Hours() / 24
	if days < 0 {
		days = 0
	}

	base := math.Max(0, 1-days/90)
	lambda := math.Ln2 / recencyHalfLifeDays
	decay := math.Exp(-lambda * days)

	return formulas.Clamp(base*decay, 0, 1)
}

// SizeScore buckets the transaction value
func SizeScore(value float64) float64 {
	switch {
	case value >= 10_000_000:
		return 1.0
	case value >= 1_000_000:
		return 0.8
	case value >= 100_000:
		return 0.5
	case value >= 10_000:
		return 0.3
	default:
		return 0.1
	}
}

// competenceScore blends the filer's track record with a role multiplier.
// Thin histories shrink toward the neutral 0.5 prior.
func (s *Scorer) competenceScore(sig *domain.Signal) float64 {
	score := 0.5

	if s.filers != nil {
		stats, err := s.filers.Get(sig.FilerName, sig.Source)
		if err != nil {
			s.log.Warn().Err(err).Str("filer", sig.FilerName).Msg("Filer history lookup failed")
		} else if stats != nil && stats.Trades > 0 {
			score = CompetenceFromHistory(stats.WinRate, stats.Trades)
		}
	}

	if sig.Source == domain.SourceForm4 {
		score = math.Min(1.0, score*RoleMultiplier(sig.FilerRole))
	}

	return formulas.Clamp(score, 0, 1)
}

// CompetenceFromHistory returns the win rate once a filer has five settled
// trades, interpolating from the 0.5 prior before that.
func CompetenceFromHistory(winRate float64, trades int) float64 {
	if trades >= 5 {
		return formulas.Clamp(winRate, 0, 1)
	}
	return formulas.Clamp(0.5+(winRate-0.5)*(float64(trades)/5), 0, 1)
}

// RoleMultiplier maps a Form 4 filer title to a conviction multiplier
func RoleMultiplier(role string) float64 {
	r := strings.ToLower(role)
	switch {
	case r == "":
		return 0.7
	case strings.Contains(r, "ceo") || strings.Contains(r, "chief executive"):
		return 1.5
	case strings.Contains(r, "cfo") || strings.Contains(r, "chief financial"):
		return 1.4
	case strings.Contains(r, "pres") || strings.Contains(r, "coo") || strings.Contains(r, "chief operating"):
		return 1.3
	// "director" contains "cto", so the director check runs before the
	// remaining C-suite matches.
	case strings.Contains(r, "dir"):
		return 1.0
	case strings.Contains(r, "chief") || strings.Contains(r, "cto") || strings.Contains(r, "cio") || strings.Contains(r, "cmo"):
		return 1.2
	case strings.Contains(r, "officer") || strings.Contains(r, "vp") || strings.Contains(r, "vice pres"):
		return 0.9
	default:
		return 0.7
	}
}

// consensusScore looks at how many distinct filers hit the same symbol
func (s *Scorer) consensusScore(sig *domain.Signal) float64 {
	if s.consensus == nil {
		return ConsensusScore(1)
	}

	count, err := s.consensus.CountDistinctFilers(sig.Symbol, sig.Source, consensusLookbackDays)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Consensus lookup failed")
		return ConsensusScore(1)
	}

	return ConsensusScore(count)
}

// ConsensusScore buckets the distinct co-filer count
func ConsensusScore(distinctFilers int) float64 {
	switch {
	case distinctFilers >= 5:
		return 1.0
	case distinctFilers >= 3:
		return 0.8
	case distinctFilers >= 2:
		return 0.5
	case distinctFilers == 1:
		return 0.3
	default:
		return 0.2
	}
}

// RegimeScore is a neutral placeholder until a market regime model lands
func RegimeScore() float64 {
	return 0.5
}

// TotalScore computes the weighted composite, rounded to 4 decimals
func TotalScore(recency, size, competence, consensus, regime float64) float64 {
	total := WeightRecency*recency +
		WeightSize*size +
		WeightCompetence*competence +
		WeightConsensus*consensus +
		WeightRegime*regime

	return formulas.Round4(total)
}

// AssignTier maps a composite score to a conviction tier
func AssignTier(score float64) domain.Tier {
	switch {
	case score >= TierSMin:
		return domain.TierS
	case score >= TierAMin:
		return domain.TierA
	case score >= TierBMin:
		return domain.TierB
	case score >= TierCMin:
		return domain.TierC
	default:
		return domain.TierReject
	}
}
