package risk

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/insider-trader/internal/database"
	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
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

func TestGateFor(t *testing.T) {
	cases := []struct {
		name     string
		current  float64
		maxDd    float64
		expected domain.Gate
	}{
		{"healthy book", 0.01, 0.03, domain.GateGreen},
		{"current at yellow", 0.05, 0.06, domain.GateYellow},
		{"max alone trips yellow", 0.00, 0.10, domain.GateYellow},
		{"current at red", 0.10, 0.12, domain.GateRed},
		{"max alone trips red", 0.02, 0.15, domain.GateRed},
		{"current at nuclear", 0.15, 0.16, domain.GateNuclear},
		{"max alone trips nuclear", 0.03, 0.20, domain.GateNuclear},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, GateFor(tc.current, tc.maxDd))
		})
	}
}

func TestStopPrice(t *testing.T) {
	t.Run("long stop sits below entry", func(t *testing.T) {
		// LOAD phase multiplier is 2.0
		stop := StopPrice(100, 2.5, domain.PhaseLoad, domain.DirectionLong)
		assert.InDelta(t, 95.0, stop, 0.001)
	})

	t.Run("short stop sits above entry", func(t *testing.T) {
		stop := StopPrice(100, 2.5, domain.PhaseLoad, domain.DirectionShort)
		assert.InDelta(t, 105.0, stop, 0.001)
	})

	t.Run("stops tighten in scale-out", func(t *testing.T) {
		loadStop := StopPrice(100, 2.5, domain.PhaseLoad, domain.DirectionLong)
		scaleOutStop := StopPrice(100, 2.5, domain.PhaseScaleOut, domain.DirectionLong)
		assert.Greater(t, scaleOutStop, loadStop)
	})
}

func TestPositionRiskPct(t *testing.T) {
	assert.Equal(t, 0.0, PositionRiskPct(150, 10_000), "winners carry no risk")
	assert.Equal(t, 0.0, PositionRiskPct(-150, 0), "empty position carries no risk")
	assert.InDelta(t, 0.03, PositionRiskPct(-300, 10_000), 0.001)
}

func TestCurrentGate(t *testing.T) {
	nop := zerolog.Nop()
	snaps := NewSnapshotRepository(setupTestDB(t), nop)
	mgr := NewManager(snaps, events.NewManager(nop), nop)

	t.Run("no history is green", func(t *testing.T) {
		gate, err := mgr.CurrentGate("live")
		require.NoError(t, err)
		assert.Equal(t, domain.GateGreen, gate)
	})

	t.Run("flat series stays green", func(t *testing.T) {
		require.NoError(t, snaps.Insert("flat", 100_000, 20_000))
		require.NoError(t, snaps.Insert("flat", 100_000, 20_000))

		gate, err := mgr.CurrentGate("flat")
		require.NoError(t, err)
		assert.Equal(t, domain.GateGreen, gate)
	})

	t.Run("deep drawdown trips nuclear", func(t *testing.T) {
		require.NoError(t, snaps.Insert("hurt", 100_000, 20_000))
		require.NoError(t, snaps.Insert("hurt", 80_000, 20_000))

		gate, err := mgr.CurrentGate("hurt")
		require.NoError(t, err)
		assert.Equal(t, domain.GateNuclear, gate)
	})
}
