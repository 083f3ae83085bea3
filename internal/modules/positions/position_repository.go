package positions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

const positionColumns = `
	position_id, symbol, direction, entry_date, entry_price, shares,
	entry_value, current_price, unrealized_pnl, conviction_tier, cycle_id,
	scenario, status, stop_price, exit_date, exit_price, realized_pnl,
	close_reason, round_start, round_expiry, created_at, updated_at`

// Repository manages positions
type Repository struct {
	*repositories.BaseRepository
}

// NewRepository creates a new position repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "positions").Logger()),
	}
}

// Insert persists a new position
func (r *Repository) Insert(p domain.Position) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.PositionID,
		p.Symbol,
		p.Direction,
		p.EntryDate.UTC().Format(time.RFC3339),
		p.EntryPrice,
		p.Shares,
		p.EntryValue,
		repositories.NullFloat64(p.CurrentPrice),
		p.UnrealizedPnL,
		repositories.NullString(string(p.ConvictionTier)),
		repositories.NullString(p.CycleID),
		p.Scenario,
		p.Status,
		repositories.NullFloat64(p.StopPrice),
		repositories.NullTime(p.ExitDate),
		repositories.NullFloat64(p.ExitPrice),
		p.RealizedPnL,
		repositories.NullString(p.CloseReason),
		repositories.NullTime(p.RoundStart),
		repositories.NullTime(p.RoundExpiry),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID returns one position, nil when not found
func (r *Repository) GetByID(positionID string) (*domain.Position, error) {
	rows, err := r.DB().Query(`
		SELECT `+positionColumns+` FROM positions WHERE position_id = ?
	`, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	p, err := scanPosition(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOpen returns all open positions for an account, newest first
func (r *Repository) GetOpen(scenario string) ([]domain.Position, error) {
	rows, err := r.DB().Query(`
		SELECT `+positionColumns+` FROM positions
		WHERE status = ? AND scenario = ?
		ORDER BY entry_date DESC
	`, domain.PositionOpen, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// GetOpenBySymbol returns the open position for a symbol in an account,
// nil when the symbol is flat.
func (r *Repository) GetOpenBySymbol(scenario, symbol string) (*domain.Position, error) {
	rows, err := r.DB().Query(`
		SELECT `+positionColumns+` FROM positions
		WHERE status = ? AND scenario = ? AND symbol = ?
		ORDER BY entry_date DESC LIMIT 1
	`, domain.PositionOpen, scenario, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query open position: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	p, err := scanPosition(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByCycle returns all positions tagged with a cycle
func (r *Repository) GetByCycle(cycleID string) ([]domain.Position, error) {
	rows, err := r.DB().Query(`
		SELECT `+positionColumns+` FROM positions
		WHERE cycle_id = ? ORDER BY entry_date
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle positions: %w", err)
	}
	defer rows.Close()

	return collectPositions(rows)
}

// CountOpen returns the number of open positions in an account
func (r *Repository) CountOpen(scenario string) (int, error) {
	var count int
	err := r.DB().QueryRow(`
		SELECT COUNT(*) FROM positions WHERE status = ? AND scenario = ?
	`, domain.PositionOpen, scenario).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}
	return count, nil
}

// InvestedValue returns the marked value of all open positions in an
// account, falling back to entry value where no mark exists.
func (r *Repository) InvestedValue(scenario string) (float64, error) {
	var value sql.NullFloat64
	err := r.DB().QueryRow(`
		SELECT SUM(CASE WHEN current_price > 0
			THEN shares * current_price ELSE entry_value END)
		FROM positions WHERE status = ? AND scenario = ?
	`, domain.PositionOpen, scenario).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to sum invested value: %w", err)
	}
	return value.Float64, nil
}

// RealizedPnLForCycle sums realized pnl over a cycle's closed positions
func (r *Repository) RealizedPnLForCycle(cycleID string) (float64, error) {
	var pnl sql.NullFloat64
	err := r.DB().QueryRow(`
		SELECT SUM(realized_pnl) FROM positions
		WHERE cycle_id = ? AND status = ?
	`, cycleID, domain.PositionClosed).Scan(&pnl)
	if err != nil {
		return 0, fmt.Errorf("failed to sum realized pnl: %w", err)
	}
	return pnl.Float64, nil
}

// UpdatePrice marks a position to the given price
func (r *Repository) UpdatePrice(positionID string, price float64) error {
	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		UPDATE positions SET
			current_price = ?,
			unrealized_pnl = (shares * ?) - entry_value,
			updated_at = ?
		WHERE position_id = ?
	`, price, price, time.Now().UTC().Format(time.RFC3339), positionID)
	if err != nil {
		return fmt.Errorf("failed to update price: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateStop moves the stop price of a position
func (r *Repository) UpdateStop(positionID string, stop float64) error {
	return r.exec(`
		UPDATE positions SET stop_price = ?, updated_at = ? WHERE position_id = ?
	`, stop, time.Now().UTC().Format(time.RFC3339), positionID)
}

// UpdateRoundExpiry pushes the round expiry of a position out
func (r *Repository) UpdateRoundExpiry(positionID string, expiry time.Time) error {
	return r.exec(`
		UPDATE positions SET round_expiry = ?, updated_at = ? WHERE position_id = ?
	`, expiry.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339), positionID)
}

// AssignCycle tags a position with a cycle
func (r *Repository) AssignCycle(positionID, cycleID string) error {
	return r.exec(`
		UPDATE positions SET cycle_id = ?, updated_at = ? WHERE position_id = ?
	`, cycleID, time.Now().UTC().Format(time.RFC3339), positionID)
}

// Close marks a position closed with its exit fill and reason
func (r *Repository) Close(positionID string, exitPrice, realizedPnL float64, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.exec(`
		UPDATE positions SET
			status = ?,
			exit_date = ?,
			exit_price = ?,
			realized_pnl = ?,
			close_reason = ?,
			updated_at = ?
		WHERE position_id = ?
	`, domain.PositionClosed, now, exitPrice, realizedPnL, reason, now, positionID)
}

func (r *Repository) exec(query string, args ...interface{}) error {
	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update position: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func collectPositions(rows *sql.Rows) ([]domain.Position, error) {
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var p domain.Position
	var entryDate, createdAt, updatedAt string
	var currentPrice, unrealizedPnL, stopPrice, exitPrice, realizedPnL sql.NullFloat64
	var tier, cycleID, closeReason sql.NullString
	var exitDate, roundStart, roundExpiry sql.NullString

	err := rows.Scan(
		&p.PositionID,
		&p.Symbol,
		&p.Direction,
		&entryDate,
		&p.EntryPrice,
		&p.Shares,
		&p.EntryValue,
		&currentPrice,
		&unrealizedPnL,
		&tier,
		&cycleID,
		&p.Scenario,
		&p.Status,
		&stopPrice,
		&exitDate,
		&exitPrice,
		&realizedPnL,
		&closeReason,
		&roundStart,
		&roundExpiry,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan position: %w", err)
	}

	if t, err := time.Parse(time.RFC3339, entryDate); err == nil {
		p.EntryDate = t
	}
	p.CurrentPrice = currentPrice.Float64
	p.UnrealizedPnL = unrealizedPnL.Float64
	p.ConvictionTier = domain.Tier(tier.String)
	p.CycleID = cycleID.String
	p.StopPrice = stopPrice.Float64
	p.ExitDate = repositories.ParseTime(exitDate)
	p.ExitPrice = exitPrice.Float64
	p.RealizedPnL = realizedPnL.Float64
	p.CloseReason = closeReason.String
	p.RoundStart = repositories.ParseTime(roundStart)
	p.RoundExpiry = repositories.ParseTime(roundExpiry)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = t
	}

	return p, nil
}
