package philosophy

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// LiveAccount is the scenario key for the live (non-sandbox) account
const LiveAccount = "live"

// StateRepository persists allocation-power state per account
type StateRepository struct {
	*repositories.BaseRepository
}

// NewStateRepository creates a new philosophy state repository
func NewStateRepository(db *sql.DB, log zerolog.Logger) *StateRepository {
	return &StateRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "philosophy").Logger()),
	}
}

// Get returns the state for an account, creating the default row on first
// access.
func (r *StateRepository) Get(scenario string) (*domain.PhilosophyState, error) {
	rows, err := r.DB().Query(`
		SELECT scenario, preset, allocation_power, clean_rounds, total_penalty,
		       last_violation, last_violation_at, saylor_extensions, updated_at
		FROM philosophy_state WHERE scenario = ?
	`, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to query philosophy state: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		state := &domain.PhilosophyState{
			Scenario:        scenario,
			Preset:          PresetBalanced,
			AllocationPower: DefaultPower,
			UpdatedAt:       time.Now().UTC(),
		}
		if err := r.Save(*state); err != nil {
			return nil, err
		}
		return state, nil
	}

	var state domain.PhilosophyState
	var lastViolation, lastViolationAt sql.NullString
	var updatedAt string

	err = rows.Scan(
		&state.Scenario,
		&state.Preset,
		&state.AllocationPower,
		&state.CleanRounds,
		&state.TotalPenalty,
		&lastViolation,
		&lastViolationAt,
		&state.SaylorExtensions,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan philosophy state: %w", err)
	}

	if lastViolation.Valid {
		state.LastViolation = lastViolation.String
	}
	state.LastViolationAt = repositories.ParseTime(lastViolationAt)
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		state.UpdatedAt = t
	}

	return &state, nil
}

// Save upserts the state for an account
func (r *StateRepository) Save(state domain.PhilosophyState) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO philosophy_state
			(scenario, preset, allocation_power, clean_rounds, total_penalty,
			 last_violation, last_violation_at, saylor_extensions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scenario) DO UPDATE SET
			preset = excluded.preset,
			allocation_power = excluded.allocation_power,
			clean_rounds = excluded.clean_rounds,
			total_penalty = excluded.total_penalty,
			last_violation = excluded.last_violation,
			last_violation_at = excluded.last_violation_at,
			saylor_extensions = excluded.saylor_extensions,
			updated_at = excluded.updated_at
	`,
		state.Scenario,
		state.Preset,
		state.AllocationPower,
		state.CleanRounds,
		state.TotalPenalty,
		repositories.NullString(state.LastViolation),
		repositories.NullTime(state.LastViolationAt),
		state.SaylorExtensions,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save philosophy state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Reset restores an account to the default state, keeping its preset
func (r *StateRepository) Reset(scenario string) error {
	state, err := r.Get(scenario)
	if err != nil {
		return err
	}

	return r.Save(domain.PhilosophyState{
		Scenario:        scenario,
		Preset:          state.Preset,
		AllocationPower: DefaultPower,
		UpdatedAt:       time.Now().UTC(),
	})
}
