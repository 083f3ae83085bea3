package signals

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/insider-trader/internal/domain"
)

type stubMarketChecker struct {
	ok     bool
	reason string
}

func (s stubMarketChecker) Check(context.Context, string) (bool, string) {
	return s.ok, s.reason
}

func form4Candidate(mutate func(*Candidate)) Candidate {
	c := Candidate{
		Signal: domain.Signal{
			Symbol:           "ACME",
			Source:           domain.SourceForm4,
			FilerName:        "Jane Roe",
			TransactionValue: 250_000,
			Price:            42.50,
		},
		TransactionType: "P - Purchase",
	}
	if mutate != nil {
		mutate(&c)
	}
	return c
}

func TestQualityFilterStructuralChecks(t *testing.T) {
	filter := NewQualityFilter(nil, zerolog.Nop())
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	t.Run("clean purchase passes", func(t *testing.T) {
		ok, reason := filter.Check(context.Background(), form4Candidate(nil), now)
		assert.True(t, ok)
		assert.Empty(t, reason)
	})

	t.Run("empty symbol", func(t *testing.T) {
		c := form4Candidate(func(c *Candidate) { c.Signal.Symbol = "  " })
		ok, reason := filter.Check(context.Background(), c, now)
		assert.False(t, ok)
		assert.Contains(t, reason, "INVALID_SYMBOL")
	})

	t.Run("overlong symbol", func(t *testing.T) {
		c := form4Candidate(func(c *Candidate) { c.Signal.Symbol = "TOOLONGTICKER" })
		ok, reason := filter.Check(context.Background(), c, now)
		assert.False(t, ok)
		assert.Contains(t, reason, "INVALID_SYMBOL")
	})

	t.Run("missing filer", func(t *testing.T) {
		c := form4Candidate(func(c *Candidate) { c.Signal.FilerName = "" })
		ok, reason := filter.Check(context.Background(), c, now)
		assert.False(t, ok)
		assert.Contains(t, reason, "MISSING_FILER")
	})

	t.Run("penny stock", func(t *testing.T) {
		c := form4Candidate(func(c *Candidate) { c.Signal.Price = 4.99 })
		ok, reason := filter.Check(context.Background(), c, now)
		assert.False(t, ok)
		assert.Contains(t, reason, "PRICE_TOO_LOW")
	})
}

func TestQualityFilterValueBoundary(t *testing.T) {
	filter := NewQualityFilter(nil, zerolog.Nop())
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	t.Run("just under the floor is rejected", func(t *testing.T) {
		c := form4Candidate(func(c *Candidate) { c.Signal.TransactionValue = 9_999.99 })
		ok, reason := filter.Check(context.Background(), c, now)
		assert.False(t, ok)
		assert.Contains(t, reason, "VALUE_TOO_SMALL")
	})

	t.Run("exactly at the floor is accepted", func(t *testing.T) {
		c := form4Candidate(func(c *Candidate) { c.Signal.TransactionValue = 10_000.00 })
		ok, _ := filter.Check(context.Background(), c, now)
		assert.True(t, ok)
	})
}

func TestQualityFilterForm4PurchaseGate(t *testing.T) {
	filter := NewQualityFilter(nil, zerolog.Nop())
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	for _, txType := range []string{"S - Sale", "A - Grant", "F - Tax", ""} {
		c := form4Candidate(func(c *Candidate) { c.TransactionType = txType })
		ok, reason := filter.Check(context.Background(), c, now)
		assert.False(t, ok, "type %q", txType)
		assert.Contains(t, reason, "NOT_A_PURCHASE")
	}

	// Purchase prefix matching is case-insensitive
	c := form4Candidate(func(c *Candidate) { c.TransactionType = strings.ToLower("P - Purchase") })
	ok, _ := filter.Check(context.Background(), c, now)
	assert.True(t, ok)
}

func TestQualityFilterCongressStaleness(t *testing.T) {
	filter := NewQualityFilter(nil, zerolog.Nop())
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	congress := func(filed, traded *time.Time) Candidate {
		return Candidate{
			Signal: domain.Signal{
				Symbol:           "ACME",
				Source:           domain.SourceCongress,
				FilerName:        "Sen. Smith",
				TransactionValue: 50_000,
				FilingDate:       filed,
				TransactionDate:  traded,
			},
		}
	}

	t.Run("fresh filing of an old trade passes", func(t *testing.T) {
		filed := now.AddDate(0, 0, -2)
		traded := now.AddDate(0, 0, -40)
		ok, reason := filter.Check(context.Background(), congress(&filed, &traded), now)
		assert.True(t, ok, reason)
	})

	t.Run("stale filing is rejected", func(t *testing.T) {
		filed := now.AddDate(0, 0, -45)
		ok, reason := filter.Check(context.Background(), congress(&filed, nil), now)
		assert.False(t, ok)
		assert.Contains(t, reason, "STALE_DISCLOSURE")
	})

	t.Run("transaction date is the fallback when no filing date", func(t *testing.T) {
		traded := now.AddDate(0, 0, -45)
		ok, reason := filter.Check(context.Background(), congress(nil, &traded), now)
		assert.False(t, ok)
		assert.Contains(t, reason, "STALE_DISCLOSURE")
	})
}

func TestQualityFilterMarketGate(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	t.Run("market rejection is surfaced", func(t *testing.T) {
		filter := NewQualityFilter(stubMarketChecker{ok: false, reason: "ILLIQUID: ADV too low"}, zerolog.Nop())
		ok, reason := filter.Check(context.Background(), form4Candidate(nil), now)
		assert.False(t, ok)
		assert.Contains(t, reason, "ILLIQUID")
	})

	t.Run("market pass keeps the candidate", func(t *testing.T) {
		filter := NewQualityFilter(stubMarketChecker{ok: true}, zerolog.Nop())
		ok, _ := filter.Check(context.Background(), form4Candidate(nil), now)
		assert.True(t, ok)
	})
}
