package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/database/repositories"
	"github.com/aristath/insider-trader/internal/domain"
)

// Log is the append-only hash-chained trade journal. Every entry's hash
// covers its payload and the previous entry's hash, so any edit to a
// stored row breaks verification from that row forward.
type Log struct {
	*repositories.BaseRepository

	mu       sync.Mutex
	lastHash string
	loaded   bool
}

// NewLog creates the audit log over the shared database
func NewLog(db *sql.DB, log zerolog.Logger) *Log {
	return &Log{
		BaseRepository: repositories.NewBase(db, log.With().Str("repo", "audit").Logger()),
	}
}

// Record appends one entry to the chain. The after state is serialized
// to JSON and becomes part of the hashed payload.
func (l *Log) Record(eventType, entityID string, afterState interface{}) error {
	stateJSON, err := json.Marshal(afterState)
	if err != nil {
		return fmt.Errorf("failed to serialize after state: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		if err := l.loadLastHash(); err != nil {
			return err
		}
	}

	timestamp := time.Now().UTC()
	hash, err := entryHash(timestamp, eventType, entityID, string(stateJSON), l.lastHash)
	if err != nil {
		return err
	}

	tx, err := l.DB().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO audit_log (timestamp, event_type, entity_id, after_state, event_hash, previous_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		timestamp.Format(time.RFC3339Nano),
		eventType,
		entityID,
		string(stateJSON),
		hash,
		repositories.NullString(l.lastHash),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.lastHash = hash
	return nil
}

// Verify walks the whole chain and reports the first broken link, if
// any. A nil error means the journal is intact.
func (l *Log) Verify() error {
	rows, err := l.DB().Query(`
		SELECT id, timestamp, event_type, entity_id, after_state, event_hash, previous_hash
		FROM audit_log ORDER BY id
	`)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	defer rows.Close()

	prevHash := ""
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return err
		}

		if entry.PreviousHash != prevHash {
			return fmt.Errorf("audit entry %d: previous hash mismatch", entry.ID)
		}

		expected, err := entryHash(entry.Timestamp, entry.EventType, entry.EntityID, entry.AfterState, entry.PreviousHash)
		if err != nil {
			return err
		}
		if entry.EventHash != expected {
			return fmt.Errorf("audit entry %d: hash mismatch", entry.ID)
		}

		prevHash = entry.EventHash
	}
	return rows.Err()
}

// Recent returns the newest entries, newest first
func (l *Log) Recent(limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := l.DB().Query(`
		SELECT id, timestamp, event_type, entity_id, after_state, event_hash, previous_hash
		FROM audit_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ForEntity returns the chain entries touching one entity, oldest first
func (l *Log) ForEntity(entityID string) ([]domain.AuditEntry, error) {
	rows, err := l.DB().Query(`
		SELECT id, timestamp, event_type, entity_id, after_state, event_hash, previous_hash
		FROM audit_log WHERE entity_id = ? ORDER BY id
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (l *Log) loadLastHash() error {
	var hash sql.NullString
	err := l.DB().QueryRow(`
		SELECT event_hash FROM audit_log ORDER BY id DESC LIMIT 1
	`).Scan(&hash)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to load chain head: %w", err)
	}
	l.lastHash = hash.String
	l.loaded = true
	return nil
}

// entryHash computes the chain hash for one entry. The payload is a
// JSON object, which Go serializes with sorted keys, so the digest is
// canonical across runs.
func entryHash(timestamp time.Time, eventType, entityID, afterState, previousHash string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"timestamp":     timestamp.Format(time.RFC3339Nano),
		"event_type":    eventType,
		"entity_id":     entityID,
		"after_state":   afterState,
		"previous_hash": previousHash,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize audit payload: %w", err)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func scanEntry(rows *sql.Rows) (domain.AuditEntry, error) {
	var entry domain.AuditEntry
	var timestamp string
	var previousHash sql.NullString

	err := rows.Scan(
		&entry.ID,
		&timestamp,
		&entry.EventType,
		&entry.EntityID,
		&entry.AfterState,
		&entry.EventHash,
		&previousHash,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		entry.Timestamp = t
	}
	entry.PreviousHash = previousHash.String

	return entry, nil
}
