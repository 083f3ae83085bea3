package risk

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
)

// SnapshotRepository stores periodic portfolio value snapshots. The
// drawdown gates are computed over this series.
type SnapshotRepository struct {
	*repositories.BaseRepository
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "snapshot").Logger()),
	}
}

// Insert records one portfolio snapshot
func (r *SnapshotRepository) Insert(scenario string, value, cash float64) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.DB().Exec(
		`INSERT INTO portfolio_snapshots (scenario, value, cash, taken_at) VALUES (?, ?, ?, ?)`,
		scenario, value, cash, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// Values returns the snapshot value series for a scenario since the
// cutoff, oldest first.
func (r *SnapshotRepository) Values(scenario string, since time.Time) ([]float64, error) {
	rows, err := r.DB().Query(
		`SELECT value FROM portfolio_snapshots
		 WHERE scenario = ? AND taken_at >= ?
		 ORDER BY taken_at ASC`,
		scenario, since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return values, nil
}

// Prune deletes snapshots older than the cutoff
func (r *SnapshotRepository) Prune(before time.Time) (int64, error) {
	result, err := r.DB().Exec(
		`DELETE FROM portfolio_snapshots WHERE taken_at < ?`,
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}
