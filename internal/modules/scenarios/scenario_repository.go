package scenarios

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// StateRepository persists per-scenario aggregates
type StateRepository struct {
	*repositories.BaseRepository
}

// NewStateRepository creates a new scenario state repository
func NewStateRepository(db *sql.DB, log zerolog.Logger) *StateRepository {
	return &StateRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "scenarios").Logger()),
	}
}

// Get returns one scenario state, nil when missing
func (r *StateRepository) Get(name string) (*domain.ScenarioState, error) {
	rows, err := r.DB().Query(`
		SELECT name, preset, cash, initial_capital, total_pnl, return_pct, updated_at
		FROM scenario_states WHERE name = ?
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenario state: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	state, err := scanState(rows)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// GetAll returns every scenario state
func (r *StateRepository) GetAll() ([]domain.ScenarioState, error) {
	rows, err := r.DB().Query(`
		SELECT name, preset, cash, initial_capital, total_pnl, return_pct, updated_at
		FROM scenario_states ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenario states: %w", err)
	}
	defer rows.Close()

	var out []domain.ScenarioState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

// Save upserts a scenario state
func (r *StateRepository) Save(state domain.ScenarioState) error {
	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO scenario_states (name, preset, cash, initial_capital, total_pnl, return_pct, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			preset = excluded.preset,
			cash = excluded.cash,
			total_pnl = excluded.total_pnl,
			return_pct = excluded.return_pct,
			updated_at = excluded.updated_at
	`,
		state.Name,
		state.Preset,
		state.Cash,
		state.InitialCapital,
		state.TotalPnL,
		state.ReturnPct,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save scenario state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete removes a scenario state
func (r *StateRepository) Delete(name string) error {
	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM scenario_states WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete scenario state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func scanState(rows *sql.Rows) (domain.ScenarioState, error) {
	var state domain.ScenarioState
	var updatedAt string

	err := rows.Scan(
		&state.Name,
		&state.Preset,
		&state.Cash,
		&state.InitialCapital,
		&state.TotalPnL,
		&state.ReturnPct,
		&updatedAt,
	)
	if err != nil {
		return state, fmt.Errorf("failed to scan scenario state: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		state.UpdatedAt = t
	}

	return state, nil
}
