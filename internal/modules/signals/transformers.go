package signals

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/insider-trader/internal/clients/congress"
	"github.com/aristath/insider-trader/internal/clients/openinsider"
	"github.com/aristath/insider-trader/internal/domain"
)

// Candidate is a normalized signal before quality filtering and insert.
// TransactionType keeps the raw source type so the filter can reject
// non-purchase rows with a reason.
type Candidate struct {
	Signal          domain.Signal
	TransactionType string
}

// SignalID derives a stable id from the signal identity fields.
// Format: <source>_<first 16 hex chars of sha256(source|SYMBOL|txdate|filer)>
func SignalID(source, symbol string, txDate *time.Time, filerName string) string {
	dateStr := ""
	if txDate != nil {
		dateStr = txDate.UTC().Format("2006-01-02")
	}

	payload := fmt.Sprintf("%s|%s|%s|%s",
		source,
		strings.ToUpper(strings.TrimSpace(symbol)),
		dateStr,
		filerName,
	)

	sum := sha256.Sum256([]byte(payload))
	return source + "_" + hex.EncodeToString(sum[:])[:16]
}

// FromForm4 normalizes an OpenInsider screener row
func FromForm4(p openinsider.Purchase) Candidate {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))

	return Candidate{
		TransactionType: p.TransactionType,
		Signal: domain.Signal{
			SignalID:         SignalID(domain.SourceForm4, symbol, p.TransactionDate, p.FilerName),
			Symbol:           symbol,
			Source:           domain.SourceForm4,
			Direction:        domain.DirectionLong,
			FilerName:        p.FilerName,
			FilerRole:        p.FilerRole,
			TransactionDate:  p.TransactionDate,
			FilingDate:       p.FilingDate,
			TransactionValue: p.TransactionValue,
			Price:            p.Price,
			Status:           domain.SignalPending,
		},
	}
}

// FromCongress normalizes a STOCK Act disclosure. Congressional filings
// disclose ranges, so the estimated value is the range midpoint.
func FromCongress(d congress.Disclosure) Candidate {
	symbol := strings.ToUpper(strings.TrimSpace(d.Symbol))

	return Candidate{
		TransactionType: d.TransactionType,
		Signal: domain.Signal{
			SignalID:         SignalID(domain.SourceCongress, symbol, d.TransactionDate, d.Representative),
			Symbol:           symbol,
			Source:           domain.SourceCongress,
			Direction:        domain.DirectionLong,
			FilerName:        d.Representative,
			TransactionDate:  d.TransactionDate,
			FilingDate:       d.DisclosureDate,
			TransactionValue: d.EstimatedValue,
			Status:           domain.SignalPending,
		},
	}
}
