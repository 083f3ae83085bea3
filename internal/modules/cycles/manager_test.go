package cycles

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/insider-trader/internal/domain"
	"github.com/aristath/insider-trader/internal/events"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	nop := zerolog.Nop()
	return NewManager(Config{
		Repo:         NewCycleRepository(setupTestDB(t), nop),
		DurationDays: 90,
		StartingCash: 100_000,
		Events:       events.NewManager(nop),
		Log:          nop,
	})
}

func TestParamsForTightenThroughPhases(t *testing.T) {
	load := ParamsFor(domain.PhaseLoad)
	active := ParamsFor(domain.PhaseActive)
	scaleOut := ParamsFor(domain.PhaseScaleOut)
	forceClose := ParamsFor(domain.PhaseForceClose)

	assert.Greater(t, load.SizeFactor, active.SizeFactor)
	assert.Greater(t, active.SizeFactor, scaleOut.SizeFactor)
	assert.Zero(t, forceClose.DeployPct)
	assert.Zero(t, forceClose.MaxPositions)
	assert.Equal(t, 1.0, forceClose.CashFloor)

	// Stops widen early and tighten as the cycle winds down
	assert.Greater(t, load.StopATRMult, scaleOut.StopATRMult)
}

func TestCreateCyclePersists(t *testing.T) {
	mgr := newTestManager(t)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cycle, err := mgr.CreateCycle(start, 50_000)
	require.NoError(t, err)

	active, err := mgr.GetActive()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, cycle.CycleID, active.CycleID)
	assert.Equal(t, 50_000.0, active.OriginalCapital)
	assert.Equal(t, domain.CycleActive, active.Status)
}

func TestCycleStateJournal(t *testing.T) {
	mgr := newTestManager(t)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cycle, err := mgr.CreateCycle(start, 100_000)
	require.NoError(t, err)

	for day, phase := range map[int]domain.Phase{
		3:  domain.PhaseLoad,
		40: domain.PhaseActive,
	} {
		require.NoError(t, mgr.Repo().RecordState(domain.CycleState{
			CycleID:        cycle.CycleID,
			Day:            day,
			Phase:          phase,
			Gate:           domain.GateGreen,
			OpenPositions:  day / 10,
			PortfolioValue: 100_000 + float64(day),
			Cash:           30_000,
			TakenAt:        start.AddDate(0, 0, day-1),
		}))
	}

	states, err := mgr.Repo().States(cycle.CycleID)
	require.NoError(t, err)
	require.Len(t, states, 2)

	assert.Equal(t, 3, states[0].Day)
	assert.Equal(t, domain.PhaseLoad, states[0].Phase)
	assert.Equal(t, 40, states[1].Day)
	assert.Equal(t, domain.PhaseActive, states[1].Phase)
	assert.Equal(t, domain.GateGreen, states[1].Gate)
	assert.Equal(t, 4, states[1].OpenPositions)
	assert.InDelta(t, 100_040.0, states[1].PortfolioValue, 1e-9)
}

func TestDayInCycle(t *testing.T) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	cycle := &domain.Cycle{StartDate: start}

	assert.Equal(t, 1, DayInCycle(cycle, start))
	assert.Equal(t, 1, DayInCycle(cycle, start.Add(-time.Hour)))
	assert.Equal(t, 2, DayInCycle(cycle, start.Add(25*time.Hour)))
	assert.Equal(t, 31, DayInCycle(cycle, start.AddDate(0, 0, 30)))
}

func TestCheckCompletion(t *testing.T) {
	mgr := newTestManager(t)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	cycle := &domain.Cycle{
		StartDate:    start,
		DurationDays: 90,
		Status:       domain.CycleActive,
	}

	t.Run("young cycle with positions keeps running", func(t *testing.T) {
		done, _ := mgr.CheckCompletion(cycle, start.AddDate(0, 0, 10), domain.GateGreen, 4)
		assert.False(t, done)
	})

	t.Run("nuclear gate completes immediately", func(t *testing.T) {
		done, reason := mgr.CheckCompletion(cycle, start.AddDate(0, 0, 2), domain.GateNuclear, 4)
		assert.True(t, done)
		assert.Equal(t, domain.CompletionEmergency, reason)
	})

	t.Run("duration elapsed", func(t *testing.T) {
		done, reason := mgr.CheckCompletion(cycle, start.AddDate(0, 0, 90), domain.GateGreen, 4)
		assert.True(t, done)
		assert.Equal(t, domain.CompletionDuration, reason)
	})

	t.Run("force close window is a phase, not a completion", func(t *testing.T) {
		day80 := start.AddDate(0, 0, 79)
		assert.Equal(t, domain.PhaseForceClose, PhaseForDay(DayInCycle(cycle, day80)))

		done, _ := mgr.CheckCompletion(cycle, day80, domain.GateGreen, 2)
		assert.False(t, done)

		// Once the sweep has drained the book, the cycle ends on ALL_CLOSED
		done, reason := mgr.CheckCompletion(cycle, day80, domain.GateGreen, 0)
		assert.True(t, done)
		assert.Equal(t, domain.CompletionAllClosed, reason)
	})

	t.Run("all closed counts only after loading", func(t *testing.T) {
		done, _ := mgr.CheckCompletion(cycle, start.AddDate(0, 0, 3), domain.GateGreen, 0)
		assert.False(t, done)

		done, reason := mgr.CheckCompletion(cycle, start.AddDate(0, 0, 20), domain.GateGreen, 0)
		assert.True(t, done)
		assert.Equal(t, domain.CompletionAllClosed, reason)
	})

	t.Run("completed cycle never re-completes", func(t *testing.T) {
		settled := &domain.Cycle{StartDate: start, DurationDays: 90, Status: domain.CycleCompleted}
		done, _ := mgr.CheckCompletion(settled, start.AddDate(0, 0, 200), domain.GateNuclear, 0)
		assert.False(t, done)
	})
}
