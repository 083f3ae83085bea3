package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/insider-trader/internal/clients/congress"
	"github.com/aristath/insider-trader/internal/clients/edgar"
	"github.com/aristath/insider-trader/internal/clients/openinsider"
	"github.com/aristath/insider-trader/internal/events"
)

// Form4Fetcher fetches insider purchase rows
type Form4Fetcher interface {
	FetchLatestPurchases(ctx context.Context) ([]openinsider.Purchase, error)
}

// CongressFetcher fetches congressional disclosures
type CongressFetcher interface {
	FetchPurchases(ctx context.Context) ([]congress.Disclosure, error)
}

// IngestResult summarizes one ingest run
type IngestResult struct {
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// IngestService pulls signals from the sources, filters and persists them
type IngestService struct {
	repo     *SignalRepository
	filter   *QualityFilter
	form4    Form4Fetcher
	congress CongressFetcher
	edgar    *edgar.Client
	events   *events.Manager
	log      zerolog.Logger
}

// IngestConfig holds ingest service dependencies
type IngestConfig struct {
	Repo     *SignalRepository
	Filter   *QualityFilter
	Form4    Form4Fetcher
	Congress CongressFetcher
	Edgar    *edgar.Client
	Events   *events.Manager
	Log      zerolog.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(cfg IngestConfig) *IngestService {
	return &IngestService{
		repo:     cfg.Repo,
		filter:   cfg.Filter,
		form4:    cfg.Form4,
		congress: cfg.Congress,
		edgar:    cfg.Edgar,
		events:   cfg.Events,
		log:      cfg.Log.With().Str("service", "ingest").Logger(),
	}
}

// IngestAll fetches all configured sources and persists new signals as
// PENDING. A source failing entirely fails the run; per-row problems are
// counted and skipped.
func (s *IngestService) IngestAll(ctx context.Context) (IngestResult, error) {
	var result IngestResult
	now := time.Now().UTC()

	// The sources are independent remote feeds, so fetch them in parallel
	// and merge. Form 4 rows go first so dedup favors the richer record.
	var form4Candidates, congressCandidates []Candidate
	g, gctx := errgroup.WithContext(ctx)

	if s.form4 != nil {
		g.Go(func() error {
			purchases, err := s.form4.FetchLatestPurchases(gctx)
			if err != nil {
				return fmt.Errorf("form4 fetch failed: %w", err)
			}
			for _, p := range purchases {
				form4Candidates = append(form4Candidates, FromForm4(p))
			}
			return nil
		})
	}

	if s.congress != nil {
		g.Go(func() error {
			disclosures, err := s.congress.FetchPurchases(gctx)
			if err != nil {
				return fmt.Errorf("congress fetch failed: %w", err)
			}
			for _, d := range disclosures {
				congressCandidates = append(congressCandidates, FromCongress(d))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	candidates := append(form4Candidates, congressCandidates...)
	result.Fetched = len(candidates)

	for _, c := range candidates {
		sig := c.Signal

		ok, reason := s.filter.Check(ctx, c, now)
		if !ok {
			result.Rejected++
			s.log.Debug().
				Str("symbol", sig.Symbol).
				Str("reason", reason).
				Msg("Candidate rejected")
			continue
		}

		exists, err := s.repo.Exists(sig.Symbol, sig.Source, sig.TransactionDate)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", sig.Symbol).Msg("Dedup check failed")
			continue
		}
		if exists {
			result.Duplicates++
			continue
		}

		if !s.verifyAgainstEdgar(ctx, c) {
			result.Rejected++
			s.log.Debug().Str("symbol", sig.Symbol).Msg("No matching EDGAR filing, rejected")
			continue
		}

		if err := s.repo.Insert(sig); err != nil {
			s.log.Warn().Err(err).Str("signal_id", sig.SignalID).Msg("Signal insert failed")
			continue
		}

		result.Inserted++
		s.events.Emit(events.SignalIngested, "signals", map[string]interface{}{
			"signal_id": sig.SignalID,
			"symbol":    sig.Symbol,
			"source":    sig.Source,
		})
	}

	s.log.Info().
		Int("fetched", result.Fetched).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("rejected", result.Rejected).
		Msg("Ingest complete")

	return result, nil
}

// verifyAgainstEdgar cross-checks Form 4 candidates against the SEC
// full-text index. Best effort: verification failures pass the candidate
// through rather than dropping real signals on an SEC outage.
func (s *IngestService) verifyAgainstEdgar(ctx context.Context, c Candidate) bool {
	if s.edgar == nil || !s.edgar.Enabled() {
		return true
	}
	if c.Signal.Source != "form4" || c.Signal.TransactionDate == nil {
		return true
	}

	count, err := s.edgar.CountRecentForm4(ctx, c.Signal.Symbol, c.Signal.TransactionDate.AddDate(0, 0, -5))
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", c.Signal.Symbol).Msg("EDGAR verification failed")
		return true
	}

	return count > 0
}
