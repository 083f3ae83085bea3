package signals

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/insider-trader/internal/clients/congress"
	"github.com/aristath/insider-trader/internal/clients/openinsider"
	"github.com/aristath/insider-trader/internal/database"
	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.ApplySchema(db))
	t.Cleanup(func() { db.Close() })

	return db
}

type stubForm4Fetcher struct {
	purchases []openinsider.Purchase
	err       error
}

func (s stubForm4Fetcher) FetchLatestPurchases(context.Context) ([]openinsider.Purchase, error) {
	return s.purchases, s.err
}

type stubCongressFetcher struct {
	disclosures []congress.Disclosure
	err         error
}

func (s stubCongressFetcher) FetchPurchases(context.Context) ([]congress.Disclosure, error) {
	return s.disclosures, s.err
}

func newIngestService(t *testing.T, form4 Form4Fetcher, cong CongressFetcher) (*IngestService, *SignalRepository) {
	t.Helper()

	nop := zerolog.Nop()
	repo := NewSignalRepository(setupTestDB(t), nop)
	svc := NewIngestService(IngestConfig{
		Repo:     repo,
		Filter:   NewQualityFilter(nil, nop),
		Form4:    form4,
		Congress: cong,
		Events:   events.NewManager(nop),
		Log:      nop,
	})

	return svc, repo
}

func TestIngestAllMergesBothFeeds(t *testing.T) {
	traded := time.Now().UTC().AddDate(0, 0, -3)
	filed := time.Now().UTC().AddDate(0, 0, -1)

	form4 := stubForm4Fetcher{purchases: []openinsider.Purchase{{
		Symbol:           "ACME",
		FilerName:        "Jane Roe",
		FilerRole:        "CEO",
		TransactionType:  "P - Purchase",
		TransactionDate:  &traded,
		FilingDate:       &filed,
		TransactionValue: 250_000,
		Price:            42.50,
	}}}
	cong := stubCongressFetcher{disclosures: []congress.Disclosure{{
		Symbol:          "WIDG",
		Representative:  "Sen. Smith",
		TransactionType: "purchase",
		TransactionDate: &traded,
		DisclosureDate:  &filed,
		EstimatedValue:  32_500,
	}}}

	svc, repo := newIngestService(t, form4, cong)

	result, err := svc.IngestAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Inserted)
	assert.Zero(t, result.Rejected)

	pending, err := repo.GetByStatus(domain.SignalPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Re-running the same feeds inserts nothing new
	result, err = svc.IngestAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Duplicates)
	assert.Zero(t, result.Inserted)
}

func TestIngestAllFailsWhenAFeedFails(t *testing.T) {
	traded := time.Now().UTC().AddDate(0, 0, -3)

	form4 := stubForm4Fetcher{err: errors.New("screener timeout")}
	cong := stubCongressFetcher{disclosures: []congress.Disclosure{{
		Symbol:          "WIDG",
		Representative:  "Sen. Smith",
		TransactionType: "purchase",
		TransactionDate: &traded,
		DisclosureDate:  &traded,
		EstimatedValue:  32_500,
	}}}

	svc, repo := newIngestService(t, form4, cong)

	_, err := svc.IngestAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "form4 fetch failed")

	// A failed source fails the whole run, nothing is persisted
	pending, err := repo.GetByStatus(domain.SignalPending, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
