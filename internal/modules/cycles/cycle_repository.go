package cycles

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// CycleRepository handles cycle database operations
type CycleRepository struct {
	*repositories.BaseRepository
}

// NewCycleRepository creates a new cycle repository
func NewCycleRepository(db *sql.DB, log zerolog.Logger) *CycleRepository {
	return &CycleRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "cycle").Logger()),
	}
}

const cycleColumns = `cycle_id, start_date, duration_days, status, original_capital,
	working_capital, realized_pnl, withdrawn_amount, return_pct, sharpe_ratio,
	win_rate, avg_winner, avg_loser, positions_opened, positions_closed,
	completion_reason, completed_at, created_at, updated_at`

// Insert persists a new cycle
func (r *CycleRepository) Insert(c domain.Cycle) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO cycles (`+cycleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.CycleID,
		c.StartDate.UTC().Format(time.RFC3339),
		c.DurationDays,
		string(c.Status),
		c.OriginalCapital,
		c.WorkingCapital,
		c.RealizedPnL,
		c.WithdrawnAmount,
		c.ReturnPct,
		nullFloatPtr(c.SharpeRatio),
		c.WinRate,
		c.AvgWinner,
		c.AvgLoser,
		c.PositionsOpened,
		c.PositionsClosed,
		repositories.NullString(c.CompletionReason),
		repositories.NullTime(c.CompletedAt),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.Log().Info().Str("cycle_id", c.CycleID).Msg("Cycle created")
	return nil
}

// GetActive returns the single ACTIVE cycle, nil when none exists
func (r *CycleRepository) GetActive() (*domain.Cycle, error) {
	rows, err := r.DB().Query(
		`SELECT ` + cycleColumns + ` FROM cycles WHERE status = 'ACTIVE' ORDER BY start_date DESC LIMIT 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query active cycle: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	c, err := scanCycle(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cycle: %w", err)
	}
	return &c, nil
}

// GetByID returns a cycle by id, nil when not found
func (r *CycleRepository) GetByID(cycleID string) (*domain.Cycle, error) {
	rows, err := r.DB().Query(`SELECT `+cycleColumns+` FROM cycles WHERE cycle_id = ?`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	c, err := scanCycle(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan cycle: %w", err)
	}
	return &c, nil
}

// History returns cycles newest first
func (r *CycleRepository) History(limit int) ([]domain.Cycle, error) {
	rows, err := r.DB().Query(
		`SELECT `+cycleColumns+` FROM cycles ORDER BY start_date DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle history: %w", err)
	}
	defer rows.Close()

	var out []domain.Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}

	return out, nil
}

// Update writes the mutable cycle fields
func (r *CycleRepository) Update(c domain.Cycle) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		UPDATE cycles SET
			status = ?, working_capital = ?, realized_pnl = ?, withdrawn_amount = ?,
			return_pct = ?, sharpe_ratio = ?, win_rate = ?, avg_winner = ?,
			avg_loser = ?, positions_opened = ?, positions_closed = ?,
			completion_reason = ?, completed_at = ?, updated_at = ?
		WHERE cycle_id = ?
	`,
		string(c.Status),
		c.WorkingCapital,
		c.RealizedPnL,
		c.WithdrawnAmount,
		c.ReturnPct,
		nullFloatPtr(c.SharpeRatio),
		c.WinRate,
		c.AvgWinner,
		c.AvgLoser,
		c.PositionsOpened,
		c.PositionsClosed,
		repositories.NullString(c.CompletionReason),
		repositories.NullTime(c.CompletedAt),
		now,
		c.CycleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update cycle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// RecordState appends one end-of-day state row for a cycle
func (r *CycleRepository) RecordState(st domain.CycleState) error {
	_, err := r.DB().Exec(`
		INSERT INTO cycle_states (cycle_id, day, phase, gate, open_positions,
			portfolio_value, cash, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		st.CycleID,
		st.Day,
		string(st.Phase),
		string(st.Gate),
		st.OpenPositions,
		st.PortfolioValue,
		st.Cash,
		st.TakenAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle state: %w", err)
	}
	return nil
}

// States returns a cycle's daily state rows, oldest first
func (r *CycleRepository) States(cycleID string) ([]domain.CycleState, error) {
	rows, err := r.DB().Query(`
		SELECT id, cycle_id, day, phase, gate, open_positions, portfolio_value, cash, taken_at
		FROM cycle_states WHERE cycle_id = ? ORDER BY day ASC, id ASC
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle states: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleState
	for rows.Next() {
		var st domain.CycleState
		var takenAt string
		if err := rows.Scan(
			&st.ID, &st.CycleID, &st.Day, (*string)(&st.Phase), (*string)(&st.Gate),
			&st.OpenPositions, &st.PortfolioValue, &st.Cash, &takenAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle state: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, takenAt); err == nil {
			st.TakenAt = t
		}
		out = append(out, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle states: %w", err)
	}

	return out, nil
}

func scanCycle(rows *sql.Rows) (domain.Cycle, error) {
	var c domain.Cycle
	var startDate, createdAt, updatedAt string
	var sharpe sql.NullFloat64
	var reason, completedAt sql.NullString

	err := rows.Scan(
		&c.CycleID,
		&startDate,
		&c.DurationDays,
		(*string)(&c.Status),
		&c.OriginalCapital,
		&c.WorkingCapital,
		&c.RealizedPnL,
		&c.WithdrawnAmount,
		&c.ReturnPct,
		&sharpe,
		&c.WinRate,
		&c.AvgWinner,
		&c.AvgLoser,
		&c.PositionsOpened,
		&c.PositionsClosed,
		&reason,
		&completedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return c, err
	}

	if t, err := time.Parse(time.RFC3339, startDate); err == nil {
		c.StartDate = t
	}
	if sharpe.Valid {
		c.SharpeRatio = &sharpe.Float64
	}
	if reason.Valid {
		c.CompletionReason = reason.String
	}
	c.CompletedAt = repositories.ParseTime(completedAt)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		c.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		c.UpdatedAt = t
	}

	return c, nil
}

func nullFloatPtr(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
