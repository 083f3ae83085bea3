package orders

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

const orderColumns = `
	order_id, position_id, symbol, side, type, qty, limit_price, status,
	filled_avg_price, commission, reason, scenario, reject_reason,
	submitted_at, filled_at`

// Repository manages the order history
type Repository struct {
	*repositories.BaseRepository
}

// NewRepository creates a new order repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "orders").Logger()),
	}
}

// Insert persists an order in its terminal state
func (r *Repository) Insert(o domain.Order) error {
	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.OrderID,
		repositories.NullString(o.PositionID),
		o.Symbol,
		o.Side,
		o.Type,
		o.Qty,
		repositories.NullFloat64(o.LimitPrice),
		o.Status,
		repositories.NullFloat64(o.FilledAvgPrice),
		repositories.NullFloat64(o.Commission),
		repositories.NullString(o.Reason),
		o.Scenario,
		repositories.NullString(o.RejectReason),
		o.SubmittedAt.UTC().Format(time.RFC3339),
		repositories.NullTime(o.FilledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Recent returns the most recent orders for an account
func (r *Repository) Recent(scenario string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB().Query(`
		SELECT `+orderColumns+` FROM orders
		WHERE scenario = ?
		ORDER BY submitted_at DESC LIMIT ?
	`, scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetByID returns one order, nil when not found
func (r *Repository) GetByID(orderID string) (*domain.Order, error) {
	rows, err := r.DB().Query(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	o, err := scanOrder(rows)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ForPosition returns the orders tied to one position
func (r *Repository) ForPosition(positionID string) ([]domain.Order, error) {
	rows, err := r.DB().Query(`
		SELECT `+orderColumns+` FROM orders
		WHERE position_id = ? ORDER BY submitted_at
	`, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(rows *sql.Rows) (domain.Order, error) {
	var o domain.Order
	var positionID, reason, rejectReason sql.NullString
	var limitPrice, filledAvgPrice, commission sql.NullFloat64
	var submittedAt string
	var filledAt sql.NullString

	err := rows.Scan(
		&o.OrderID,
		&positionID,
		&o.Symbol,
		&o.Side,
		&o.Type,
		&o.Qty,
		&limitPrice,
		&o.Status,
		&filledAvgPrice,
		&commission,
		&reason,
		&o.Scenario,
		&rejectReason,
		&submittedAt,
		&filledAt,
	)
	if err != nil {
		return o, fmt.Errorf("failed to scan order: %w", err)
	}

	o.PositionID = positionID.String
	o.LimitPrice = limitPrice.Float64
	o.FilledAvgPrice = filledAvgPrice.Float64
	o.Commission = commission.Float64
	o.Reason = reason.String
	o.RejectReason = rejectReason.String
	if t, err := time.Parse(time.RFC3339, submittedAt); err == nil {
		o.SubmittedAt = t
	}
	o.FilledAt = repositories.ParseTime(filledAt)

	return o, nil
}
