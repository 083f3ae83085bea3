package orders

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/insider-trader/internal/database"
	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/broker"
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

func newTestManager(t *testing.T, cash float64) (*Manager, *positions.Repository, *broker.Paper) {
	t.Helper()

	db := setupTestDB(t)
	paper := broker.NewPaper(broker.PaperConfig{
		StartingCash: cash,
		SlippageBps:  10,
		Seed:         7,
		Log:          zerolog.Nop(),
	})
	require.NoError(t, paper.Connect())

	posRepo := positions.NewRepository(db, zerolog.Nop())
	mgr := NewManager(ManagerConfig{
		Broker:    paper,
		Orders:    NewRepository(db, zerolog.Nop()),
		Positions: posRepo,
		Events:    events.NewManager(zerolog.Nop()),
		Log:       zerolog.Nop(),
	})

	return mgr, posRepo, paper
}

func TestOpenPositionRefusesShortEntries(t *testing.T) {
	mgr, posRepo, _ := newTestManager(t, 10_000)

	pos, err := mgr.OpenPosition(context.Background(), EntryRequest{
		Scenario:  "live",
		Symbol:    "AAPL",
		Direction: domain.DirectionShort,
		Shares:    10,
		Tier:      domain.TierA,
		CycleID:   "cycle_x",
		SignalID:  "sig-1",
	})
	require.Error(t, err)
	assert.Nil(t, pos)

	// Nothing was booked
	open, err := posRepo.GetOpen("live")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOpenPositionBooksAtFillPrice(t *testing.T) {
	mgr, posRepo, _ := newTestManager(t, 10_000)

	pos, err := mgr.OpenPosition(context.Background(), EntryRequest{
		Scenario:  "live",
		Symbol:    "AAPL",
		Direction: domain.DirectionLong,
		Shares:    10,
		Tier:      domain.TierA,
		CycleID:   "cycle_x",
		SignalID:  "sig-1",
	})
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Greater(t, pos.EntryPrice, 0.0)
	assert.Equal(t, pos.EntryPrice*10, pos.EntryValue)

	stored, err := posRepo.GetByID(pos.PositionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PositionOpen, stored.Status)
	assert.Equal(t, "cycle_x", stored.CycleID)

	orders, err := mgr.orders.ForPosition(pos.PositionID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderFilled, orders[0].Status)
}

func TestOpenPositionRejectionBooksNothing(t *testing.T) {
	mgr, posRepo, _ := newTestManager(t, 50)

	pos, err := mgr.OpenPosition(context.Background(), EntryRequest{
		Scenario:  "live",
		Symbol:    "AAPL",
		Direction: domain.DirectionLong,
		Shares:    100,
	})
	require.NoError(t, err)
	assert.Nil(t, pos)

	count, err := posRepo.CountOpen("live")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClosePositionRealizesPnL(t *testing.T) {
	mgr, posRepo, _ := newTestManager(t, 10_000)

	pos, err := mgr.OpenPosition(context.Background(), EntryRequest{
		Scenario:  "live",
		Symbol:    "MSFT",
		Direction: domain.DirectionLong,
		Shares:    5,
	})
	require.NoError(t, err)
	require.NotNil(t, pos)

	require.NoError(t, mgr.ClosePosition(context.Background(), *pos, domain.CloseForced))

	stored, err := posRepo.GetByID(pos.PositionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.PositionClosed, stored.Status)
	assert.Equal(t, domain.CloseForced, stored.CloseReason)
	assert.InDelta(t, (stored.ExitPrice-stored.EntryPrice)*5, stored.RealizedPnL, 1e-9)
}

func TestEmergencyLiquidationClosesEverything(t *testing.T) {
	mgr, posRepo, _ := newTestManager(t, 50_000)

	for _, sym := range []string{"AAPL", "MSFT", "NVDA"} {
		pos, err := mgr.OpenPosition(context.Background(), EntryRequest{
			Scenario:  "live",
			Symbol:    sym,
			Direction: domain.DirectionLong,
			Shares:    5,
		})
		require.NoError(t, err)
		require.NotNil(t, pos)
	}

	closed, err := mgr.EmergencyLiquidation(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, 3, closed)

	count, err := posRepo.CountOpen("live")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkToMarketUpdatesPrices(t *testing.T) {
	mgr, posRepo, _ := newTestManager(t, 10_000)

	pos, err := mgr.OpenPosition(context.Background(), EntryRequest{
		Scenario:  "live",
		Symbol:    "GOOG",
		Direction: domain.DirectionLong,
		Shares:    3,
	})
	require.NoError(t, err)
	require.NotNil(t, pos)

	require.NoError(t, mgr.MarkToMarket(context.Background(), "live"))

	stored, err := posRepo.GetByID(pos.PositionID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Greater(t, stored.CurrentPrice, 0.0)
}
