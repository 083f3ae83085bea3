package review

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/insider-trader/internal/database"
	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
	"github.com/aristath/insider-trader/internal/modules/broker"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/philosophy"
	"github.com/aristath/insider-trader/internal/modules/positions"
)

type sweepFixture struct {
	sweeper   *Sweeper
	positions *positions.Repository
	paper     *broker.Paper
	snapshots *stubSnapshots
}

type stubSnapshots struct {
	values []float64
}

func (s *stubSnapshots) Values(string, time.Time) ([]float64, error) {
	return s.values, nil
}

func setupSweep(t *testing.T) *sweepFixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.ApplySchema(db))
	t.Cleanup(func() { db.Close() })

	nop := zerolog.Nop()
	ev := events.NewManager(nop)

	paper := broker.NewPaper(broker.PaperConfig{StartingCash: 100_000, Seed: 5, Log: nop})
	require.NoError(t, paper.Connect())

	posRepo := positions.NewRepository(db, nop)
	orderMgr := orders.NewManager(orders.ManagerConfig{
		Broker:    paper,
		Orders:    orders.NewRepository(db, nop),
		Positions: posRepo,
		Events:    ev,
		Log:       nop,
	})
	engine := philosophy.NewEngine(philosophy.NewStateRepository(db, nop), nil, ev, nop)
	snaps := &stubSnapshots{}

	return &sweepFixture{
		sweeper:   NewSweeper(posRepo, orderMgr, engine, snaps, nop),
		positions: posRepo,
		paper:     paper,
		snapshots: snaps,
	}
}

func sweepPosition(t *testing.T, f *sweepFixture, id string, tier domain.Tier, entryDaysAgo, expiryDaysFromNow int) domain.Position {
	t.Helper()

	buy := &domain.Order{Symbol: id, Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 10, Scenario: "live"}
	require.NoError(t, f.paper.SubmitOrder(context.Background(), buy))
	require.Equal(t, domain.OrderFilled, buy.Status)

	entry := time.Now().UTC().AddDate(0, 0, -entryDaysAgo)
	expiry := time.Now().UTC().AddDate(0, 0, expiryDaysFromNow)
	pos := domain.Position{
		PositionID:     "pos-" + id,
		Symbol:         id,
		Direction:      domain.DirectionLong,
		EntryDate:      entry,
		EntryPrice:     100,
		Shares:         10,
		EntryValue:     1000,
		ConvictionTier: tier,
		Scenario:       "live",
		Status:         domain.PositionOpen,
		RoundStart:     &entry,
		RoundExpiry:    &expiry,
	}
	require.NoError(t, f.positions.Insert(pos))
	return pos
}

func TestExpiredRoundCloses(t *testing.T) {
	f := setupSweep(t)
	pos := sweepPosition(t, f, "AAPL", domain.TierB, 35, -1)

	result, err := f.sweeper.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)

	stored, err := f.positions.GetByID(pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, stored.Status)
	assert.Equal(t, domain.CloseExpiry, stored.CloseReason)
}

func TestStrongWinnerGetsExtension(t *testing.T) {
	f := setupSweep(t)
	// Steep, steady equity curve pushes the Sharpe well past the Saylor bar
	f.snapshots.values = []float64{100_000, 101_000, 102_100, 103_000, 104_200, 105_100}

	pos := sweepPosition(t, f, "NVDA", domain.TierS, 35, -1)
	oldExpiry := *pos.RoundExpiry

	result, err := f.sweeper.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Extended)
	assert.Zero(t, result.Expired)

	stored, err := f.positions.GetByID(pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, stored.Status)
	require.NotNil(t, stored.RoundExpiry)
	assert.WithinDuration(t, oldExpiry.AddDate(0, 0, 30), *stored.RoundExpiry, time.Second)
}

func TestExtensionBudgetIsBounded(t *testing.T) {
	f := setupSweep(t)
	f.snapshots.values = []float64{100_000, 101_000, 102_100, 103_000, 104_200, 105_100}

	pos := sweepPosition(t, f, "NVDA", domain.TierS, 35, -1)

	// Balanced allows two Saylor extensions; the third expiry closes
	for i := 0; i < 2; i++ {
		result, err := f.sweeper.Run(context.Background(), "live", time.Now().UTC().AddDate(0, 0, 40*(i+1)))
		require.NoError(t, err)
		require.Equal(t, 1, result.Extended, "extension %d", i+1)
	}

	result, err := f.sweeper.Run(context.Background(), "live", time.Now().UTC().AddDate(0, 0, 365))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)

	stored, err := f.positions.GetByID(pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, stored.Status)
}

func TestStopBreachCloses(t *testing.T) {
	f := setupSweep(t)
	pos := sweepPosition(t, f, "TSLA", domain.TierA, 5, 25)

	require.NoError(t, f.positions.UpdateStop(pos.PositionID, 95))
	require.NoError(t, f.positions.UpdatePrice(pos.PositionID, 90))

	result, err := f.sweeper.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stopped)

	stored, err := f.positions.GetByID(pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, stored.Status)
	assert.Equal(t, domain.CloseStopLoss, stored.CloseReason)
}

func TestStagnantPositionCloses(t *testing.T) {
	f := setupSweep(t)
	// Held 100 days with a flat mark; keep the round alive to isolate
	// the stagnation rule
	pos := sweepPosition(t, f, "INTC", domain.TierB, 100, 30)
	require.NoError(t, f.positions.UpdatePrice(pos.PositionID, 101))

	result, err := f.sweeper.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stagnant)

	stored, err := f.positions.GetByID(pos.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.CloseStagnant, stored.CloseReason)
}
