package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/aristath/insider-trader/internal/domain"
)

// Client is an Alpaca market data API client
type Client struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Key     string
	Secret  string
	Log     zerolog.Logger
}

// NewClient creates a new market data client. Requests go through a rate
// limiter (200 req/min free tier) and a circuit breaker so a flapping data
// API cannot stall the scheduler jobs.
func NewClient(cfg Config) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "alpaca",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		key:     cfg.Key,
		secret:  cfg.Secret,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Every(300*time.Millisecond), 5),
		log:     cfg.Log.With().Str("client", "alpaca").Logger(),
	}
}

type quoteResponse struct {
	Quote struct {
		Bid float64 `json:"bp"`
		Ask float64 `json:"ap"`
	} `json:"quote"`
}

type barsResponse struct {
	Bars []struct {
		Time   time.Time `json:"t"`
		Open   float64   `json:"o"`
		High   float64   `json:"h"`
		Low    float64   `json:"l"`
		Close  float64   `json:"c"`
		Volume int64     `json:"v"`
	} `json:"bars"`
}

// GetQuote fetches the latest bid/ask quote for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	path := fmt.Sprintf("/v2/stocks/%s/quotes/latest", url.PathEscape(symbol))

	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode quote for %s: %w", symbol, err)
	}

	if resp.Quote.Bid == 0 && resp.Quote.Ask == 0 {
		return nil, fmt.Errorf("no quote available for %s", symbol)
	}

	return &domain.Quote{
		Symbol:    symbol,
		Bid:       resp.Quote.Bid,
		Ask:       resp.Quote.Ask,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetDailyBars fetches up to limit daily bars ending today
func (c *Client) GetDailyBars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	end := time.Now().UTC()
	// Buffer for weekends and holidays
	start := end.AddDate(0, 0, -(limit*2 + 5))

	params := url.Values{}
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))
	params.Set("timeframe", "1Day")
	params.Set("limit", fmt.Sprintf("%d", limit))

	path := fmt.Sprintf("/v2/stocks/%s/bars", url.PathEscape(symbol))

	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	var resp barsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bars for %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		bars = append(bars, domain.Bar{
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	return bars, nil
}

// get performs a rate-limited GET through the circuit breaker
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		reqURL := c.baseURL + path
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("APCA-API-KEY-ID", c.key)
		req.Header.Set("APCA-API-SECRET-KEY", c.secret)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		return body, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}
