package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client queries the SEC EDGAR full-text search API. The SEC requires a
// descriptive User-Agent and throttles above 10 req/s; we stay well under.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewClient creates a new EDGAR client
func NewClient(baseURL, userAgent string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		log:     log.With().Str("client", "edgar").Logger(),
	}
}

// Enabled reports whether the client is usable. The SEC rejects requests
// without a contact User-Agent, so no UA means no verification.
func (c *Client) Enabled() bool {
	return c.userAgent != ""
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
	} `json:"hits"`
}

// CountRecentForm4 returns the number of Form 4 filings mentioning the
// symbol since the given date, via EDGAR full-text search.
func (c *Client) CountRecentForm4(ctx context.Context, symbol string, since time.Time) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter wait: %w", err)
	}

	params := url.Values{}
	params.Set("q", fmt.Sprintf("%q", symbol))
	params.Set("forms", "4")
	params.Set("dateRange", "custom")
	params.Set("startdt", since.UTC().Format("2006-01-02"))
	params.Set("enddt", time.Now().UTC().Format("2006-01-02"))

	reqURL := c.baseURL + "/search-index?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read search response: %w", err)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return 0, fmt.Errorf("failed to decode search response: %w", err)
	}

	return sr.Hits.Total.Value, nil
}
