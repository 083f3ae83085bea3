package signals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/insider-trader/internal/domain"
)

// Structural thresholds
const (
	MinSignalPrice      = 5.0    // penny-stock floor, when a price is known
	MinTransactionValue = 10_000 // noise floor on disclosed value
	MaxSymbolLength     = 10
	MaxCongressStaleDays = 30 // congressional filings lag; older is noise
)

// MarketChecker is the optional market-data gate applied after the
// structural checks pass.
type MarketChecker interface {
	Check(ctx context.Context, symbol string) (bool, string)
}

// QualityFilter applies structural rejects before scoring
type QualityFilter struct {
	market MarketChecker
	log    zerolog.Logger
}

// NewQualityFilter creates a new quality filter. The market checker may be
// nil to run structural checks only.
func NewQualityFilter(market MarketChecker, log zerolog.Logger) *QualityFilter {
	return &QualityFilter{
		market: market,
		log:    log.With().Str("component", "quality_filter").Logger(),
	}
}

// Check returns (false, reason) when a candidate fails a structural or
// market gate. Candidates that pass go on to scoring.
func (f *QualityFilter) Check(ctx context.Context, c Candidate, now time.Time) (bool, string) {
	sig := c.Signal

	symbol := strings.TrimSpace(sig.Symbol)
	if symbol == "" {
		return false, "INVALID_SYMBOL: empty symbol"
	}
	if len(symbol) > MaxSymbolLength {
		return false, fmt.Sprintf("INVALID_SYMBOL: %q too long", symbol)
	}

	if strings.TrimSpace(sig.FilerName) == "" {
		return false, "MISSING_FILER: filer name required"
	}

	if sig.Price > 0 && sig.Price < MinSignalPrice {
		return false, fmt.Sprintf("PRICE_TOO_LOW: $%.2f < $%.2f", sig.Price, MinSignalPrice)
	}

	if sig.TransactionValue < MinTransactionValue {
		return false, fmt.Sprintf("VALUE_TOO_SMALL: $%.0f < $%d", sig.TransactionValue, MinTransactionValue)
	}

	switch sig.Source {
	case domain.SourceForm4:
		// Only open-market purchases carry signal; sales and grants don't
		if !strings.HasPrefix(strings.ToUpper(c.TransactionType), "P") {
			return false, fmt.Sprintf("NOT_A_PURCHASE: %q", c.TransactionType)
		}
		if sig.TransactionValue == 0 {
			return false, "ZERO_VALUE: purchase with no disclosed value"
		}

	case domain.SourceCongress:
		// Staleness is measured from the disclosure, not the trade; the
		// trade itself is routinely weeks older than the filing.
		filed := sig.FilingDate
		if filed == nil {
			filed = sig.TransactionDate
		}
		if filed != nil {
			staleDays := int(now.Sub(*filed).Hours() / 24)
			if staleDays > MaxCongressStaleDays {
				return false, fmt.Sprintf("STALE_DISCLOSURE: %d days old", staleDays)
			}
		}
	}

	if f.market != nil {
		if ok, reason := f.market.Check(ctx, symbol); !ok {
			return false, reason
		}
	}

	return true, ""
}
