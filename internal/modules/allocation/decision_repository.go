package allocation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// DecisionRepository stores the allocation decision log
type DecisionRepository struct {
	*repositories.BaseRepository
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *sql.DB, log zerolog.Logger) *DecisionRepository {
	return &DecisionRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "decisions").Logger()),
	}
}

// Insert records one sizing decision
func (r *DecisionRepository) Insert(d domain.AllocationDecision) error {
	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO allocation_decisions
			(cycle_id, scenario, signal_id, symbol, direction, conviction_tier,
			 shares, target_price, slot_value, cluster_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.CycleID,
		d.Scenario,
		d.SignalID,
		d.Symbol,
		d.Direction,
		d.ConvictionTier,
		d.Shares,
		d.TargetPrice,
		d.SlotValue,
		d.ClusterSize,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert allocation decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ForCycle returns the decisions made during one cycle, oldest first
func (r *DecisionRepository) ForCycle(cycleID string) ([]domain.AllocationDecision, error) {
	rows, err := r.DB().Query(`
		SELECT id, cycle_id, scenario, signal_id, symbol, direction,
		       conviction_tier, shares, target_price, slot_value, cluster_size, created_at
		FROM allocation_decisions WHERE cycle_id = ? ORDER BY id
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.AllocationDecision
	for rows.Next() {
		var d domain.AllocationDecision
		var createdAt string
		err := rows.Scan(
			&d.ID, &d.CycleID, &d.Scenario, &d.SignalID, &d.Symbol, &d.Direction,
			&d.ConvictionTier, &d.Shares, &d.TargetPrice, &d.SlotValue, &d.ClusterSize, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			d.CreatedAt = t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
