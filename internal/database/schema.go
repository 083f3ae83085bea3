package database

import (
	"database/sql"
	"fmt"
)

// Schema statements, executed in order inside a single transaction.
// SQLite only, so everything is IF NOT EXISTS and additive.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		signal_id         TEXT PRIMARY KEY,
		symbol            TEXT NOT NULL,
		source            TEXT NOT NULL,
		direction         TEXT NOT NULL DEFAULT 'LONG',
		filer_name        TEXT NOT NULL,
		filer_role        TEXT,
		transaction_date  TEXT,
		filing_date       TEXT,
		transaction_value REAL NOT NULL DEFAULT 0,
		price             REAL NOT NULL DEFAULT 0,
		recency_score     REAL NOT NULL DEFAULT 0,
		size_score        REAL NOT NULL DEFAULT 0,
		competence_score  REAL NOT NULL DEFAULT 0,
		consensus_score   REAL NOT NULL DEFAULT 0,
		regime_score      REAL NOT NULL DEFAULT 0,
		total_score       REAL NOT NULL DEFAULT 0,
		conviction_tier   TEXT,
		status            TEXT NOT NULL DEFAULT 'PENDING',
		rejection_reason  TEXT,
		persisted_cycles  INTEGER NOT NULL DEFAULT 0,
		cycle_id          TEXT,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_signals_dedup
		ON signals(symbol, source, transaction_date)`,

	`CREATE TABLE IF NOT EXISTS positions (
		position_id     TEXT PRIMARY KEY,
		symbol          TEXT NOT NULL,
		direction       TEXT NOT NULL DEFAULT 'LONG',
		entry_date      TEXT NOT NULL,
		entry_price     REAL NOT NULL,
		shares          INTEGER NOT NULL,
		entry_value     REAL NOT NULL,
		current_price   REAL,
		unrealized_pnl  REAL,
		conviction_tier TEXT,
		cycle_id        TEXT,
		scenario        TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'OPEN',
		stop_price      REAL,
		exit_date       TEXT,
		exit_price      REAL,
		realized_pnl    REAL,
		close_reason    TEXT,
		round_start     TEXT,
		round_expiry    TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_cycle ON positions(cycle_id)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_scenario ON positions(scenario)`,

	`CREATE TABLE IF NOT EXISTS orders (
		order_id         TEXT PRIMARY KEY,
		position_id      TEXT,
		symbol           TEXT NOT NULL,
		side             TEXT NOT NULL,
		type             TEXT NOT NULL DEFAULT 'MARKET',
		qty              INTEGER NOT NULL,
		limit_price      REAL,
		status           TEXT NOT NULL DEFAULT 'NEW',
		filled_avg_price REAL,
		commission       REAL,
		reason           TEXT,
		scenario         TEXT NOT NULL DEFAULT '',
		reject_reason    TEXT,
		submitted_at     TEXT NOT NULL,
		filled_at        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_position ON orders(position_id)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

	`CREATE TABLE IF NOT EXISTS cycles (
		cycle_id          TEXT PRIMARY KEY,
		start_date        TEXT NOT NULL,
		duration_days     INTEGER NOT NULL,
		status            TEXT NOT NULL DEFAULT 'ACTIVE',
		original_capital  REAL NOT NULL,
		working_capital   REAL NOT NULL,
		realized_pnl      REAL NOT NULL DEFAULT 0,
		withdrawn_amount  REAL NOT NULL DEFAULT 0,
		return_pct        REAL NOT NULL DEFAULT 0,
		sharpe_ratio      REAL,
		win_rate          REAL NOT NULL DEFAULT 0,
		avg_winner        REAL NOT NULL DEFAULT 0,
		avg_loser         REAL NOT NULL DEFAULT 0,
		positions_opened  INTEGER NOT NULL DEFAULT 0,
		positions_closed  INTEGER NOT NULL DEFAULT 0,
		completion_reason TEXT,
		completed_at      TEXT,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status)`,

	`CREATE TABLE IF NOT EXISTS cycle_states (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id        TEXT NOT NULL,
		day             INTEGER NOT NULL,
		phase           TEXT NOT NULL,
		gate            TEXT NOT NULL,
		open_positions  INTEGER NOT NULL DEFAULT 0,
		portfolio_value REAL NOT NULL DEFAULT 0,
		cash            REAL NOT NULL DEFAULT 0,
		taken_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cycle_states_cycle ON cycle_states(cycle_id, day)`,

	`CREATE TABLE IF NOT EXISTS allocation_decisions (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id        TEXT NOT NULL,
		scenario        TEXT NOT NULL DEFAULT '',
		signal_id       TEXT NOT NULL,
		symbol          TEXT NOT NULL,
		direction       TEXT NOT NULL,
		conviction_tier TEXT NOT NULL,
		shares          INTEGER NOT NULL,
		target_price    REAL NOT NULL,
		slot_value      REAL NOT NULL,
		cluster_size    INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_decisions_cycle ON allocation_decisions(cycle_id)`,

	`CREATE TABLE IF NOT EXISTS filer_stats (
		filer_name TEXT NOT NULL,
		source     TEXT NOT NULL,
		trades     INTEGER NOT NULL DEFAULT 0,
		wins       INTEGER NOT NULL DEFAULT 0,
		win_rate   REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (filer_name, source)
	)`,

	`CREATE TABLE IF NOT EXISTS philosophy_state (
		scenario          TEXT PRIMARY KEY,
		preset            TEXT NOT NULL DEFAULT 'Balanced',
		allocation_power  REAL NOT NULL DEFAULT 1.0,
		clean_rounds      INTEGER NOT NULL DEFAULT 0,
		total_penalty     REAL NOT NULL DEFAULT 0,
		last_violation    TEXT,
		last_violation_at TEXT,
		saylor_extensions INTEGER NOT NULL DEFAULT 0,
		updated_at        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS scenario_states (
		name            TEXT PRIMARY KEY,
		preset          TEXT NOT NULL,
		cash            REAL NOT NULL,
		initial_capital REAL NOT NULL,
		total_pnl       REAL NOT NULL DEFAULT 0,
		return_pct      REAL NOT NULL DEFAULT 0,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp     TEXT NOT NULL,
		event_type    TEXT NOT NULL,
		entity_id     TEXT NOT NULL,
		after_state   TEXT NOT NULL,
		event_hash    TEXT NOT NULL,
		previous_hash TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id)`,

	`CREATE TABLE IF NOT EXISTS quotes_cache (
		symbol     TEXT PRIMARY KEY,
		bid        REAL NOT NULL,
		ask        REAL NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		scenario   TEXT NOT NULL DEFAULT '',
		value      REAL NOT NULL,
		cash       REAL NOT NULL,
		taken_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_scenario ON portfolio_snapshots(scenario, taken_at)`,
}

// Migrate creates or updates the schema
func (db *DB) Migrate() error {
	return ApplySchema(db.conn)
}

// ApplySchema runs the schema statements against any open connection.
// Exposed so tests can migrate in-memory databases.
func ApplySchema(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	return nil
}
