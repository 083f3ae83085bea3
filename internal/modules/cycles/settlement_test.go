package cycles

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/insider-trader/internal/database"
	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/positions"
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

type stubCloser struct {
	repo   *positions.Repository
	closed []string
}

func (c *stubCloser) ClosePosition(_ context.Context, pos domain.Position, reason string) error {
	c.closed = append(c.closed, pos.Symbol)
	return c.repo.Close(pos.PositionID, pos.EntryPrice, 0, reason)
}

type stubSnapshots struct {
	values []float64
}

func (s stubSnapshots) Values(string, time.Time) ([]float64, error) {
	return s.values, nil
}

func newSettlerFixture(t *testing.T) (*Settler, *Manager, *positions.Repository, *stubCloser) {
	t.Helper()

	db := setupTestDB(t)
	nop := zerolog.Nop()
	ev := events.NewManager(nop)

	posRepo := positions.NewRepository(db, nop)
	mgr := NewManager(Config{
		Repo:         NewCycleRepository(db, nop),
		DurationDays: 90,
		StartingCash: 100_000,
		Events:       ev,
		Log:          nop,
	})
	closer := &stubCloser{repo: posRepo}

	settler := NewSettler(SettlerConfig{
		Manager:   mgr,
		Positions: posRepo,
		Closer:    closer,
		Snapshots: stubSnapshots{values: []float64{100_000, 101_000, 102_500, 101_800, 103_000}},
		Events:    ev,
		Log:       nop,
	})

	return settler, mgr, posRepo, closer
}

func seedPosition(t *testing.T, repo *positions.Repository, cycleID, symbol string, open bool, pnl float64) {
	t.Helper()

	pos := domain.Position{
		PositionID: fmt.Sprintf("pos-%s", symbol),
		Symbol:     symbol,
		Direction:  domain.DirectionLong,
		EntryDate:  time.Now().UTC().AddDate(0, 0, -20),
		EntryPrice: 100,
		Shares:     10,
		EntryValue: 1000,
		CycleID:    cycleID,
		Scenario:   "live",
		Status:     domain.PositionOpen,
	}
	require.NoError(t, repo.Insert(pos))

	if !open {
		require.NoError(t, repo.Close(pos.PositionID, 100+pnl/10, pnl, domain.CloseExpiry))
	}
}

func TestSettleMatureCycle(t *testing.T) {
	settler, mgr, posRepo, closer := newSettlerFixture(t)

	start := time.Now().UTC().AddDate(0, 0, -35)
	cycle, err := mgr.CreateCycle(start, 100_000)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		seedPosition(t, posRepo, cycle.CycleID, fmt.Sprintf("SYM%d", i), false, 500)
	}
	seedPosition(t, posRepo, cycle.CycleID, "LOSER", false, -500)
	seedPosition(t, posRepo, cycle.CycleID, "OPEN1", true, 0)

	result, err := settler.Settle(context.Background(), cycle, "live", time.Now().UTC(), domain.CompletionDuration)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Closed)
	assert.Equal(t, []string{"OPEN1"}, closer.closed)
	assert.InDelta(t, 1500.0, result.RealizedPnL, 1e-9)
	assert.InDelta(t, 750.0, result.Withdrawn, 1e-9)
	assert.NotEmpty(t, result.NextCycleID)

	settled, err := mgr.Repo().GetByID(cycle.CycleID)
	require.NoError(t, err)
	require.NotNil(t, settled)
	assert.Equal(t, domain.CycleCompleted, settled.Status)
	assert.Equal(t, domain.CompletionDuration, settled.CompletionReason)
	assert.NotNil(t, settled.SharpeRatio)

	// Trade stats cover the whole book, settlement closes included
	assert.Equal(t, 6, settled.PositionsOpened)
	assert.Equal(t, 6, settled.PositionsClosed)
	assert.InDelta(t, 4.0/6.0, settled.WinRate, 1e-9)
	assert.InDelta(t, 500.0, settled.AvgWinner, 1e-9)
	assert.InDelta(t, -250.0, settled.AvgLoser, 1e-9)

	// The next cycle restarts at reduced capital
	next, err := mgr.GetActive()
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, result.NextCycleID, next.CycleID)
	assert.InDelta(t, 80_000.0, next.OriginalCapital, 1e-9)
}

func TestSettleYoungCycleRefuses(t *testing.T) {
	settler, mgr, posRepo, _ := newSettlerFixture(t)

	cycle, err := mgr.CreateCycle(time.Now().UTC().AddDate(0, 0, -10), 100_000)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		seedPosition(t, posRepo, cycle.CycleID, fmt.Sprintf("SYM%d", i), false, 100)
	}

	_, err = settler.Settle(context.Background(), cycle, "live", time.Now().UTC(), domain.CompletionDuration)
	assert.Error(t, err)

	stored, err := mgr.Repo().GetByID(cycle.CycleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleActive, stored.Status)
}

func TestSettleThinCycleRefuses(t *testing.T) {
	settler, mgr, posRepo, _ := newSettlerFixture(t)

	cycle, err := mgr.CreateCycle(time.Now().UTC().AddDate(0, 0, -40), 100_000)
	require.NoError(t, err)
	seedPosition(t, posRepo, cycle.CycleID, "ONLY", false, 100)

	_, err = settler.Settle(context.Background(), cycle, "live", time.Now().UTC(), domain.CompletionDuration)
	assert.Error(t, err)
}

func TestEmergencySettlesUnconditionally(t *testing.T) {
	settler, mgr, posRepo, _ := newSettlerFixture(t)

	cycle, err := mgr.CreateCycle(time.Now().UTC().AddDate(0, 0, -3), 100_000)
	require.NoError(t, err)
	seedPosition(t, posRepo, cycle.CycleID, "AAPL", true, 0)

	result, err := settler.Settle(context.Background(), cycle, "live", time.Now().UTC(), domain.CompletionEmergency)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Closed)

	stored, err := mgr.Repo().GetByID(cycle.CycleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CycleCompleted, stored.Status)
	assert.Equal(t, domain.CompletionEmergency, stored.CompletionReason)
}

func TestSettleCompletedCycleIsNoOp(t *testing.T) {
	settler, mgr, _, _ := newSettlerFixture(t)

	cycle, err := mgr.CreateCycle(time.Now().UTC().AddDate(0, 0, -40), 100_000)
	require.NoError(t, err)

	completedAt := time.Now().UTC()
	cycle.Status = domain.CycleCompleted
	cycle.CompletedAt = &completedAt
	require.NoError(t, mgr.Repo().Update(*cycle))

	result, err := settler.Settle(context.Background(), cycle, "live", time.Now().UTC(), domain.CompletionDuration)
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.Empty(t, result.NextCycleID)
}

func TestPhaseBoundaries(t *testing.T) {
	tests := []struct {
		day  int
		want domain.Phase
	}{
		{1, domain.PhaseLoad},
		{7, domain.PhaseLoad},
		{8, domain.PhaseActive},
		{60, domain.PhaseActive},
		{61, domain.PhaseScaleOut},
		{75, domain.PhaseScaleOut},
		{76, domain.PhaseForceClose},
		{90, domain.PhaseForceClose},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PhaseForDay(tt.day), "day %d", tt.day)
	}
}

func TestCheckCompletionSeverityOrder(t *testing.T) {
	mgr := NewManager(Config{
		Repo:         nil,
		DurationDays: 90,
		StartingCash: 100_000,
		Events:       events.NewManager(zerolog.Nop()),
		Log:          zerolog.Nop(),
	})

	cycle := &domain.Cycle{
		CycleID:      "cycle_test",
		StartDate:    time.Now().UTC().AddDate(0, 0, -76),
		DurationDays: 90,
		Status:       domain.CycleActive,
	}

	// Nuclear trumps everything else
	done, reason := mgr.CheckCompletion(cycle, time.Now().UTC(), domain.GateNuclear, 3)
	assert.True(t, done)
	assert.Equal(t, domain.CompletionEmergency, reason)

	// Inside the force-close window with open positions the cycle runs on
	done, _ = mgr.CheckCompletion(cycle, time.Now().UTC(), domain.GateGreen, 3)
	assert.False(t, done)

	// A fresh cycle with no positions stays open through the load window
	fresh := &domain.Cycle{
		CycleID:      "cycle_fresh",
		StartDate:    time.Now().UTC().AddDate(0, 0, -2),
		DurationDays: 90,
		Status:       domain.CycleActive,
	}
	done, _ = mgr.CheckCompletion(fresh, time.Now().UTC(), domain.GateGreen, 0)
	assert.False(t, done)
}
