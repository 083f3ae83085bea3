package congress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Disclosure is one STOCK Act transaction disclosure
type Disclosure struct {
	Symbol          string
	Representative  string
	TransactionType string // "purchase", "sale_full", "sale_partial", ...
	TransactionDate *time.Time
	DisclosureDate  *time.Time
	AmountRange     string
	EstimatedValue  float64 // midpoint of the disclosed range
}

// Client fetches congressional trading disclosures from the public
// stock-watcher dataset.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a new congressional disclosures client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		log:     log.With().Str("client", "congress").Logger(),
	}
}

type rawTransaction struct {
	TransactionDate string `json:"transaction_date"`
	DisclosureDate  string `json:"disclosure_date"`
	Ticker          string `json:"ticker"`
	Representative  string `json:"representative"`
	Type            string `json:"type"`
	Amount          string `json:"amount"`
}

// FetchPurchases returns disclosed purchase transactions. Sale and exchange
// rows are dropped here; staleness filtering happens downstream.
func (c *Client) FetchPurchases(ctx context.Context) ([]Disclosure, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	url := c.baseURL + "/data/all_transactions.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("disclosures request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("disclosures returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read disclosures: %w", err)
	}

	var raw []rawTransaction
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode disclosures: %w", err)
	}

	var out []Disclosure
	for _, tx := range raw {
		if !strings.HasPrefix(strings.ToLower(tx.Type), "purchase") {
			continue
		}

		symbol := strings.ToUpper(strings.TrimSpace(tx.Ticker))
		if symbol == "" || symbol == "--" {
			continue
		}

		d := Disclosure{
			Symbol:          symbol,
			Representative:  strings.TrimSpace(tx.Representative),
			TransactionType: tx.Type,
			AmountRange:     tx.Amount,
			EstimatedValue:  ParseAmountRange(tx.Amount),
		}
		if t, err := time.Parse("2006-01-02", tx.TransactionDate); err == nil {
			d.TransactionDate = &t
		}
		if t, err := time.Parse("2006-01-02", tx.DisclosureDate); err == nil {
			d.DisclosureDate = &t
		} else if t, err := time.Parse("01/02/2006", tx.DisclosureDate); err == nil {
			d.DisclosureDate = &t
		}

		out = append(out, d)
	}

	c.log.Debug().Int("rows", len(raw)).Int("purchases", len(out)).Msg("Disclosures fetched")
	return out, nil
}

// ParseAmountRange converts a disclosed range like "$1,001 - $15,000" to
// its midpoint. Open-ended ranges ("$50,000,000 +") use the lower bound.
func ParseAmountRange(amount string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "", "+", "").Replace(amount)
	parts := strings.Split(cleaned, "-")

	var bounds []float64
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			continue
		}
		bounds = append(bounds, val)
	}

	switch len(bounds) {
	case 0:
		return 0
	case 1:
		return bounds[0]
	default:
		return (bounds[0] + bounds[1]) / 2
	}
}
