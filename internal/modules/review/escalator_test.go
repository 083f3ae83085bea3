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
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/signals"
)

type fixture struct {
	escalator *Escalator
	signals   *signals.SignalRepository
	positions *positions.Repository
	paper     *broker.Paper
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.ApplySchema(db))
	t.Cleanup(func() { db.Close() })

	nop := zerolog.Nop()
	ev := events.NewManager(nop)

	paper := broker.NewPaper(broker.PaperConfig{
		StartingCash: 100_000,
		Seed:         3,
		Log:          nop,
	})
	require.NoError(t, paper.Connect())

	sigRepo := signals.NewSignalRepository(db, nop)
	posRepo := positions.NewRepository(db, nop)
	orderRepo := orders.NewRepository(db, nop)

	orderMgr := orders.NewManager(orders.ManagerConfig{
		Broker:    paper,
		Orders:    orderRepo,
		Positions: posRepo,
		Events:    ev,
		Log:       nop,
	})

	escalator := NewEscalator(Config{
		Signals:   sigRepo,
		Positions: posRepo,
		Orders:    orderMgr,
		OrderRepo: orderRepo,
		Broker:    paper,
		Events:    ev,
		Log:       nop,
	})

	return &fixture{escalator: escalator, signals: sigRepo, positions: posRepo, paper: paper}
}

func seedOpenPosition(t *testing.T, f *fixture, tier domain.Tier) domain.Position {
	t.Helper()

	// The broker must actually hold the shares the book says it holds
	buy := &domain.Order{Symbol: "AAPL", Side: domain.SideBuy, Type: domain.OrderMarket, Qty: 10, Scenario: "live"}
	require.NoError(t, f.paper.SubmitOrder(context.Background(), buy))
	require.Equal(t, domain.OrderFilled, buy.Status)

	roundStart := time.Now().UTC().AddDate(0, 0, -10)
	roundExpiry := roundStart.AddDate(0, 0, 30)
	pos := domain.Position{
		PositionID:     "pos-1",
		Symbol:         "AAPL",
		Direction:      domain.DirectionLong,
		EntryDate:      roundStart,
		EntryPrice:     100,
		Shares:         10,
		EntryValue:     1000,
		ConvictionTier: tier,
		CycleID:        "cycle_x",
		Scenario:       "live",
		Status:         domain.PositionOpen,
		RoundStart:     &roundStart,
		RoundExpiry:    &roundExpiry,
	}
	require.NoError(t, f.positions.Insert(pos))
	return pos
}

func seedSignal(t *testing.T, f *fixture, tier domain.Tier, persisted int) {
	t.Helper()

	now := time.Now().UTC()
	sig := domain.Signal{
		SignalID:        "sig-1",
		Symbol:          "AAPL",
		Source:          domain.SourceForm4,
		Direction:       domain.DirectionLong,
		FilerName:       "Cook",
		TransactionDate: &now,
		TotalScore:      0.85,
		ConvictionTier:  tier,
		Status:          domain.SignalActive,
		PersistedCycles: persisted,
	}
	require.NoError(t, f.signals.Insert(sig))
}

func TestEscalatesOnTierJumpAfterTwoCycles(t *testing.T) {
	f := setup(t)

	original := seedOpenPosition(t, f, domain.TierC)
	// Run() ages the signal by one more cycle, reaching the threshold
	seedSignal(t, f, domain.TierS, 1)

	result, err := f.escalator.Run(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)
	assert.Zero(t, result.Failed)

	// The old position closed with the escalation reason
	old, err := f.positions.GetByID(original.PositionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, old.Status)
	assert.Equal(t, domain.CloseEscalation, old.CloseReason)

	// The replacement keeps the entry price and round clock, at the new tier
	upgraded, err := f.positions.GetOpenBySymbol("live", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, upgraded)
	assert.Equal(t, domain.TierS, upgraded.ConvictionTier)
	assert.Equal(t, original.EntryPrice, upgraded.EntryPrice)
	assert.Equal(t, original.Shares, upgraded.Shares)
	assert.Equal(t, original.CycleID, upgraded.CycleID)
	require.NotNil(t, upgraded.RoundExpiry)
	assert.WithinDuration(t, *original.RoundExpiry, *upgraded.RoundExpiry, time.Second)
}

func TestNoEscalationBelowTierDelta(t *testing.T) {
	f := setup(t)

	seedOpenPosition(t, f, domain.TierB)
	seedSignal(t, f, domain.TierA, 5) // delta 1, plenty of cycles

	result, err := f.escalator.Run(context.Background(), "live")
	require.NoError(t, err)
	assert.Zero(t, result.Escalated)

	pos, err := f.positions.GetOpenBySymbol("live", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, domain.TierB, pos.ConvictionTier)
}

func TestNoEscalationBeforeSignalPersists(t *testing.T) {
	f := setup(t)

	seedOpenPosition(t, f, domain.TierC)
	// Fresh signal: one aging pass still leaves it short of the threshold
	seedSignal(t, f, domain.TierS, 0)

	result, err := f.escalator.Run(context.Background(), "live")
	require.NoError(t, err)
	assert.Zero(t, result.Escalated)

	// The next pass ages it to two and the escalation goes through
	result, err = f.escalator.Run(context.Background(), "live")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Escalated)
}

func TestRunAgesActiveSignals(t *testing.T) {
	f := setup(t)

	seedSignal(t, f, domain.TierA, 0)

	_, err := f.escalator.Run(context.Background(), "live")
	require.NoError(t, err)

	sig, err := f.signals.GetByID("sig-1")
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, 1, sig.PersistedCycles)
}
