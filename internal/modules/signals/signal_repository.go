package signals

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// SignalRepository handles signal database operations
type SignalRepository struct {
	*repositories.BaseRepository
}

// NewSignalRepository creates a new signal repository
func NewSignalRepository(db *sql.DB, log zerolog.Logger) *SignalRepository {
	return &SignalRepository{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "signal").Logger()),
	}
}

const signalColumns = `signal_id, symbol, source, direction, filer_name, filer_role,
	transaction_date, filing_date, transaction_value, price,
	recency_score, size_score, competence_score, consensus_score, regime_score,
	total_score, conviction_tier, status, rejection_reason, persisted_cycles,
	cycle_id, created_at, updated_at`

// Insert persists a new signal
func (r *SignalRepository) Insert(sig domain.Signal) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO signals (` + signalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		sig.SignalID,
		strings.ToUpper(strings.TrimSpace(sig.Symbol)),
		sig.Source,
		sig.Direction,
		sig.FilerName,
		repositories.NullString(sig.FilerRole),
		repositories.NullTime(sig.TransactionDate),
		repositories.NullTime(sig.FilingDate),
		sig.TransactionValue,
		sig.Price,
		sig.RecencyScore,
		sig.SizeScore,
		sig.CompetenceScore,
		sig.ConsensusScore,
		sig.RegimeScore,
		sig.TotalScore,
		repositories.NullString(string(sig.ConvictionTier)),
		string(sig.Status),
		repositories.NullString(sig.RejectionReason),
		sig.PersistedCycles,
		repositories.NullString(sig.CycleID),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Exists reports whether a signal with the same dedup key already exists.
// The dedup key is (symbol, source, transaction_date).
func (r *SignalRepository) Exists(symbol, source string, txDate *time.Time) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	var count int
	var err error
	if txDate == nil {
		err = r.DB().QueryRow(
			`SELECT COUNT(*) FROM signals WHERE symbol = ? AND source = ? AND transaction_date IS NULL`,
			symbol, source,
		).Scan(&count)
	} else {
		err = r.DB().QueryRow(
			`SELECT COUNT(*) FROM signals WHERE symbol = ? AND source = ? AND transaction_date = ?`,
			symbol, source, txDate.UTC().Format(time.RFC3339),
		).Scan(&count)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check signal existence: %w", err)
	}

	return count > 0, nil
}

// GetByID returns a signal by id, nil when not found
func (r *SignalRepository) GetByID(signalID string) (*domain.Signal, error) {
	rows, err := r.DB().Query(`SELECT `+signalColumns+` FROM signals WHERE signal_id = ?`, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	sig, err := scanSignal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}
	return &sig, nil
}

// GetByStatus returns signals with the given status, newest first
func (r *SignalRepository) GetByStatus(status domain.SignalStatus, limit int) ([]domain.Signal, error) {
	rows, err := r.DB().Query(
		`SELECT `+signalColumns+` FROM signals WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals by status: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// GetCandidates returns ACTIVE signals not yet consumed by any cycle,
// strongest first.
func (r *SignalRepository) GetCandidates(limit int) ([]domain.Signal, error) {
	rows, err := r.DB().Query(`
		SELECT `+signalColumns+` FROM signals
		WHERE status = 'ACTIVE' AND cycle_id IS NULL
		ORDER BY total_score DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate signals: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// UpdateScores writes factor scores, total, tier and status after scoring
func (r *SignalRepository) UpdateScores(sig domain.Signal) error {
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := r.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		UPDATE signals SET
			recency_score = ?, size_score = ?, competence_score = ?,
			consensus_score = ?, regime_score = ?, total_score = ?,
			conviction_tier = ?, status = ?, rejection_reason = ?, updated_at = ?
		WHERE signal_id = ?
	`,
		sig.RecencyScore,
		sig.SizeScore,
		sig.CompetenceScore,
		sig.ConsensusScore,
		sig.RegimeScore,
		sig.TotalScore,
		repositories.NullString(string(sig.ConvictionTier)),
		string(sig.Status),
		repositories.NullString(sig.RejectionReason),
		now,
		sig.SignalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update signal scores: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// AssignCycle marks a signal as consumed by a cycle
func (r *SignalRepository) AssignCycle(signalID, cycleID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := r.DB().Exec(
		`UPDATE signals SET cycle_id = ?, updated_at = ? WHERE signal_id = ?`,
		cycleID, now, signalID,
	)
	if err != nil {
		return fmt.Errorf("failed to assign signal to cycle: %w", err)
	}
	return nil
}

// IncrementPersistedCycles bumps the persistence counter on all ACTIVE
// signals. Runs once per review day.
func (r *SignalRepository) IncrementPersistedCycles() (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.DB().Exec(
		`UPDATE signals SET persisted_cycles = persisted_cycles + 1, updated_at = ? WHERE status = 'ACTIVE'`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to increment persisted cycles: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}

// LatestActiveFor returns the most recent ACTIVE signal for a symbol and
// direction, nil when none exists.
func (r *SignalRepository) LatestActiveFor(symbol, direction string) (*domain.Signal, error) {
	rows, err := r.DB().Query(`
		SELECT `+signalColumns+` FROM signals
		WHERE symbol = ? AND direction = ? AND status = 'ACTIVE'
		ORDER BY created_at DESC
		LIMIT 1
	`, strings.ToUpper(strings.TrimSpace(symbol)), direction)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest active signal: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	sig, err := scanSignal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan signal: %w", err)
	}
	return &sig, nil
}

// CountDistinctFilers counts distinct filers for a symbol and source with
// transactions inside the lookback window. Used for consensus and cluster
// detection.
func (r *SignalRepository) CountDistinctFilers(symbol, source string, lookbackDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays).Format(time.RFC3339)

	var count int
	err := r.DB().QueryRow(`
		SELECT COUNT(DISTINCT filer_name) FROM signals
		WHERE symbol = ? AND source = ?
		  AND (transaction_date IS NULL OR transaction_date >= ?)
	`, strings.ToUpper(strings.TrimSpace(symbol)), source, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct filers: %w", err)
	}

	return count, nil
}

// MarkExpired expires ACTIVE unconsumed signals created before the cutoff
func (r *SignalRepository) MarkExpired(cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.DB().Exec(`
		UPDATE signals SET status = 'EXPIRED', updated_at = ?
		WHERE status = 'ACTIVE' AND cycle_id IS NULL AND created_at < ?
	`, now, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to expire signals: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected, nil
}

// Stats returns signal counts by status
func (r *SignalRepository) Stats() (map[string]int, error) {
	rows, err := r.DB().Query(`SELECT status, COUNT(*) FROM signals GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan signal stats: %w", err)
		}
		stats[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal stats: %w", err)
	}

	return stats, nil
}

func collectSignals(rows *sql.Rows) ([]domain.Signal, error) {
	var out []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return out, nil
}

func scanSignal(rows *sql.Rows) (domain.Signal, error) {
	var sig domain.Signal
	var filerRole, tier, rejection, cycleID sql.NullString
	var txDate, filingDate sql.NullString
	var createdAt, updatedAt string

	err := rows.Scan(
		&sig.SignalID,
		&sig.Symbol,
		&sig.Source,
		&sig.Direction,
		&sig.FilerName,
		&filerRole,
		&txDate,
		&filingDate,
		&sig.TransactionValue,
		&sig.Price,
		&sig.RecencyScore,
		&sig.SizeScore,
		&sig.CompetenceScore,
		&sig.ConsensusScore,
		&sig.RegimeScore,
		&sig.TotalScore,
		&tier,
		(*string)(&sig.Status),
		&rejection,
		&sig.PersistedCycles,
		&cycleID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return sig, err
	}

	if filerRole.Valid {
		sig.FilerRole = filerRole.String
	}
	if tier.Valid {
		sig.ConvictionTier = domain.Tier(tier.String)
	}
	if rejection.Valid {
		sig.RejectionReason = rejection.String
	}
	if cycleID.Valid {
		sig.CycleID = cycleID.String
	}
	sig.TransactionDate = repositories.ParseTime(txDate)
	sig.FilingDate = repositories.ParseTime(filingDate)
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		sig.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		sig.UpdatedAt = t
	}

	return sig, nil
}
