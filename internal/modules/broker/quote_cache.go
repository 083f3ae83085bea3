package broker

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// QuoteCache stores the last known quote per symbol
type QuoteCache interface {
	Get(symbol string) (*domain.Quote, error)
	Put(quote domain.Quote) error
}

// QuoteCacheRepository is a sqlite-backed quote cache
type QuoteCacheRepository struct {
	*repositories.BaseRepository
}

// NewQuoteCacheRepository creates a new quote cache repository
func NewQuoteCacheRepository(db *sql.DB, log zerolog.Logger) *QuoteCacheRepository {
	return &QuoteCacheRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "quotes").Logger()),
	}
}

// Get returns the cached quote for a symbol, nil when none exists
func (r *QuoteCacheRepository) Get(symbol string) (*domain.Quote, error) {
	rows, err := r.DB().Query(`
		SELECT symbol, bid, ask, updated_at FROM quotes_cache WHERE symbol = ?
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote cache: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var quote domain.Quote
	var updatedAt string
	if err := rows.Scan(&quote.Symbol, &quote.Bid, &quote.Ask, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan quote: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		quote.Timestamp = t
	}

	return &quote, nil
}

// Put upserts the cached quote for a symbol
func (r *QuoteCacheRepository) Put(quote domain.Quote) error {
	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO quotes_cache (symbol, bid, ask, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			bid = excluded.bid,
			ask = excluded.ask,
			updated_at = excluded.updated_at
	`, quote.Symbol, quote.Bid, quote.Ask, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert quote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
