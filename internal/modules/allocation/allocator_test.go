package allocation

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
	"github.com/aristath/insider-trader/internal/modules/broker"
	"github.com/aristath/insider-trader/internal/modules/cycles"
	"github.com/aristath/insider-trader/internal/modules/orders"
	"github.com/aristath/insider-trader/internal/modules/philosophy"
	"github.com/aristath/insider-trader/internal/modules/positions"
	"github.com/aristath/insider-trader/internal/modules/risk"
	"github.com/aristath/insider-trader/internal/modules/signals"
	"github.com/aristath/insider-trader/internal/modules/sizing"
)

type stubMarket struct{}

func (stubMarket) Summary(_ context.Context, symbol string) domain.MarketSummary {
	return domain.MarketSummary{
		Symbol:       symbol,
		CurrentPrice: 100,
		ATR:          2,
		AvgVolumeUSD: 10_000_000,
		BidAskSpread: 0.05,
		Timestamp:    time.Now().UTC(),
	}
}

type fixture struct {
	db        *sql.DB
	allocator *Allocator
	signals   *signals.SignalRepository
	positions *positions.Repository
	decisions *DecisionRepository
	risk      *risk.Manager
}

func setup(t *testing.T, cash float64) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, database.ApplySchema(db))
	t.Cleanup(func() { db.Close() })

	nop := zerolog.Nop()
	ev := events.NewManager(nop)

	paper := broker.NewPaper(broker.PaperConfig{
		StartingCash: cash,
		SlippageBps:  0,
		Seed:         11,
		Log:          nop,
	})
	require.NoError(t, paper.Connect())

	sigRepo := signals.NewSignalRepository(db, nop)
	posRepo := positions.NewRepository(db, nop)
	decRepo := NewDecisionRepository(db, nop)
	riskMgr := risk.NewManager(risk.NewSnapshotRepository(db, nop), ev, nop)

	orderMgr := orders.NewManager(orders.ManagerConfig{
		Broker:    paper,
		Orders:    orders.NewRepository(db, nop),
		Positions: posRepo,
		Events:    ev,
		Log:       nop,
	})

	cycleMgr := cycles.NewManager(cycles.Config{
		Repo:         cycles.NewCycleRepository(db, nop),
		DurationDays: 90,
		StartingCash: cash,
		Events:       ev,
		Log:          nop,
	})

	engine := philosophy.NewEngine(philosophy.NewStateRepository(db, nop), nil, ev, nop)

	alloc := NewAllocator(Config{
		Cycles:     cycleMgr,
		Risk:       riskMgr,
		Signals:    sigRepo,
		Positions:  posRepo,
		Decisions:  decRepo,
		Orders:     orderMgr,
		Philosophy: engine,
		Sizer:      sizing.NewSizer(stubMarket{}, nop),
		Broker:     paper,
		Events:     ev,
		Log:        nop,
	})

	return &fixture{
		db:        db,
		allocator: alloc,
		signals:   sigRepo,
		positions: posRepo,
		decisions: decRepo,
		risk:      riskMgr,
	}
}

func activeSignal(id, symbol, filer string, score float64) domain.Signal {
	now := time.Now().UTC()
	return domain.Signal{
		SignalID:        id,
		Symbol:          symbol,
		Source:          domain.SourceForm4,
		Direction:       domain.DirectionLong,
		FilerName:       filer,
		TransactionDate: &now,
		Price:           100,
		TotalScore:      score,
		ConvictionTier:  domain.TierB,
		Status:          domain.SignalActive,
	}
}

func TestRunOpensPositionsFromCandidates(t *testing.T) {
	f := setup(t, 100_000)

	require.NoError(t, f.signals.Insert(activeSignal("sig-1", "AAPL", "Cook", 0.70)))
	require.NoError(t, f.signals.Insert(activeSignal("sig-2", "MSFT", "Nadella", 0.60)))

	result, err := f.allocator.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Opened)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, string(domain.PhaseLoad), result.Phase)

	open, err := f.positions.GetOpen("live")
	require.NoError(t, err)
	assert.Len(t, open, 2)

	decisions, err := f.decisions.ForCycle(result.CycleID)
	require.NoError(t, err)
	assert.Len(t, decisions, 2)

	// Winning candidates get tagged with the cycle
	sig, err := f.signals.GetByID("sig-1")
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, result.CycleID, sig.CycleID)
}

func TestRunSkipsWhenGateClosed(t *testing.T) {
	f := setup(t, 100_000)

	require.NoError(t, f.signals.Insert(activeSignal("sig-1", "AAPL", "Cook", 0.70)))

	// A 12% drawdown trips the RED gate
	snapshots := risk.NewSnapshotRepository(f.db, zerolog.Nop())
	require.NoError(t, snapshots.Insert("live", 100_000, 100_000))
	require.NoError(t, snapshots.Insert("live", 88_000, 88_000))

	result, err := f.allocator.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, "RISK_GATE_CLOSED", result.Skipped)
	assert.Zero(t, result.Opened)

	open, err := f.positions.GetOpen("live")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRunSkipsSymbolsAlreadyOpen(t *testing.T) {
	f := setup(t, 100_000)

	require.NoError(t, f.signals.Insert(activeSignal("sig-1", "AAPL", "Cook", 0.70)))

	first, err := f.allocator.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 1, first.Opened)

	// A second signal on the same symbol must not double up
	dup := activeSignal("sig-2", "AAPL", "Maestri", 0.65)
	earlier := time.Now().UTC().AddDate(0, 0, -1)
	dup.TransactionDate = &earlier
	require.NoError(t, f.signals.Insert(dup))

	second, err := f.allocator.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, second.Opened)

	count, err := f.positions.CountOpen("live")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunRejectsThinEdgeSignals(t *testing.T) {
	f := setup(t, 100_000)

	// Expected return 0.30 * 0.40 = 0.12, under the Balanced 0.15 floor
	require.NoError(t, f.signals.Insert(activeSignal("sig-1", "AAPL", "Cook", 0.30)))

	result, err := f.allocator.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)

	assert.Zero(t, result.Opened)
	assert.Equal(t, 1, result.Rejected)
}

func TestClusterConvictionSizesLarger(t *testing.T) {
	f := setup(t, 200_000)

	// Three distinct filers on NVDA form a cluster; lone filer on MSFT
	for i, filer := range []string{"Huang", "Kress", "Puri"} {
		sig := activeSignal(fmt.Sprintf("sig-nvda-%d", i), "NVDA", filer, 0.70)
		// Dedup index is on (symbol, source, transaction_date)
		txDate := time.Now().UTC().AddDate(0, 0, -i)
		sig.TransactionDate = &txDate
		require.NoError(t, f.signals.Insert(sig))
	}
	require.NoError(t, f.signals.Insert(activeSignal("sig-msft", "MSFT", "Nadella", 0.70)))

	result, err := f.allocator.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.Opened, 2)

	nvda, err := f.positions.GetOpenBySymbol("live", "NVDA")
	require.NoError(t, err)
	require.NotNil(t, nvda)
	msft, err := f.positions.GetOpenBySymbol("live", "MSFT")
	require.NoError(t, err)
	require.NotNil(t, msft)

	assert.Greater(t, nvda.EntryValue, msft.EntryValue)
}

func TestRunRespectsSlotCeiling(t *testing.T) {
	f := setup(t, 1_000_000)

	// More candidates than the loading phase allows positions
	for i := 0; i < 15; i++ {
		require.NoError(t, f.signals.Insert(activeSignal(
			fmt.Sprintf("sig-%d", i), fmt.Sprintf("SYM%d", i), fmt.Sprintf("Filer%d", i), 0.70)))
	}

	result, err := f.allocator.Run(context.Background(), "live", time.Now().UTC())
	require.NoError(t, err)

	params := cycles.ParamsFor(domain.PhaseLoad)
	assert.LessOrEqual(t, result.Opened, params.MaxPositions)
}
