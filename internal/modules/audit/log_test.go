package audit

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/insider-trader/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.ApplySchema(db))
	t.Cleanup(func() { db.Close() })

	return db
}

func TestChainLinksAndVerifies(t *testing.T) {
	db := setupTestDB(t)
	log := NewLog(db, zerolog.Nop())

	require.NoError(t, log.Record("POSITION_OPENED", "pos-1", map[string]interface{}{"symbol": "AAPL", "shares": 10}))
	require.NoError(t, log.Record("POSITION_CLOSED", "pos-1", map[string]interface{}{"symbol": "AAPL", "pnl": 42.5}))
	require.NoError(t, log.Record("CYCLE_SETTLED", "cycle_x", map[string]interface{}{"withdrawn": 100.0}))

	require.NoError(t, log.Verify())

	entries, err := log.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first; each entry points at its predecessor
	assert.Equal(t, entries[1].EventHash, entries[0].PreviousHash)
	assert.Equal(t, entries[2].EventHash, entries[1].PreviousHash)
	assert.Empty(t, entries[2].PreviousHash)
}

func TestVerifyDetectsTampering(t *testing.T) {
	db := setupTestDB(t)
	log := NewLog(db, zerolog.Nop())

	require.NoError(t, log.Record("POSITION_OPENED", "pos-1", map[string]interface{}{"shares": 10}))
	require.NoError(t, log.Record("POSITION_CLOSED", "pos-1", map[string]interface{}{"pnl": -5.0}))
	require.NoError(t, log.Verify())

	_, err := db.Exec(`UPDATE audit_log SET after_state = '{"pnl":500.0}' WHERE id = 2`)
	require.NoError(t, err)

	assert.Error(t, log.Verify())
}

func TestChainHeadSurvivesRestart(t *testing.T) {
	db := setupTestDB(t)

	first := NewLog(db, zerolog.Nop())
	require.NoError(t, first.Record("ORDER_FILLED", "ord-1", map[string]interface{}{"qty": 5}))

	// A fresh instance over the same database must continue the chain
	second := NewLog(db, zerolog.Nop())
	require.NoError(t, second.Record("ORDER_FILLED", "ord-2", map[string]interface{}{"qty": 7}))

	require.NoError(t, second.Verify())

	entries, err := second.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[1].EventHash, entries[0].PreviousHash)
}

func TestForEntity(t *testing.T) {
	db := setupTestDB(t)
	log := NewLog(db, zerolog.Nop())

	require.NoError(t, log.Record("POSITION_OPENED", "pos-1", map[string]interface{}{"shares": 10}))
	require.NoError(t, log.Record("POSITION_OPENED", "pos-2", map[string]interface{}{"shares": 3}))
	require.NoError(t, log.Record("POSITION_CLOSED", "pos-1", map[string]interface{}{"pnl": 1.0}))

	entries, err := log.ForEntity("pos-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "POSITION_OPENED", entries[0].EventType)
	assert.Equal(t, "POSITION_CLOSED", entries[1].EventType)
}
