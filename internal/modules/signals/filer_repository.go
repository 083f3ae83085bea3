package signals

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// FilerRepository tracks the historical hit rate of filers
type FilerRepository struct {
	*repositories.BaseRepository
}

// NewFilerRepository creates a new filer stats repository
func NewFilerRepository(db *sql.DB, log zerolog.Logger) *FilerRepository {
	return &FilerRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "filer").Logger()),
	}
}

// Get returns stats for a filer, nil when the filer has no history
func (r *FilerRepository) Get(filerName, source string) (*domain.FilerStats, error) {
	rows, err := r.DB().Query(
		`SELECT filer_name, source, trades, wins, win_rate, updated_at
		 FROM filer_stats WHERE filer_name = ? AND source = ?`,
		filerName, source,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query filer stats: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var stats domain.FilerStats
	var updatedAt string
	if err := rows.Scan(&stats.FilerName, &stats.Source, &stats.Trades, &stats.Wins, &stats.WinRate, &updatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan filer stats: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		stats.UpdatedAt = t
	}

	return &stats, nil
}

// RecordOutcome updates a filer's record after one of their signals'
// positions settles. Win rate is recomputed in the same statement.
func (r *FilerRepository) RecordOutcome(filerName, source string, win bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	winInc := 0
	if win {
		winInc = 1
	}

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO filer_stats (filer_name, source, trades, wins, win_rate, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(filer_name, source) DO UPDATE SET
			trades = trades + 1,
			wins = wins + excluded.wins,
			win_rate = CAST(wins + excluded.wins AS REAL) / (trades + 1),
			updated_at = excluded.updated_at
	`, filerName, source, winInc, float64(winInc), now)
	if err != nil {
		return fmt.Errorf("failed to record filer outcome: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
