package openinsider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// Purchase is one Form 4 open-market purchase row from the screener
type Purchase struct {
	Symbol           string
	FilerName        string
	FilerRole        string
	TransactionType  string // "P - Purchase", "S - Sale", ...
	TransactionDate  *time.Time
	FilingDate       *time.Time
	Price            float64
	TransactionValue float64
}

// Client scrapes the OpenInsider latest-purchases screener
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a new OpenInsider client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Be polite to a free screener
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:     log.With().Str("client", "openinsider").Logger(),
	}
}

// FetchLatestPurchases returns recent open-market purchase rows.
// The screener is an HTML table; anything that fails to parse is skipped.
func (c *Client) FetchLatestPurchases(ctx context.Context) ([]Purchase, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	url := c.baseURL + "/latest-insider-purchases-25k"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "insider-trader/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("screener request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("screener returned status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse screener HTML: %w", err)
	}

	rows := extractTableRows(doc, "tinytable")

	var purchases []Purchase
	for _, cells := range rows {
		p, ok := parseRow(cells)
		if !ok {
			continue
		}
		purchases = append(purchases, p)
	}

	c.log.Debug().Int("rows", len(rows)).Int("parsed", len(purchases)).Msg("Screener fetched")
	return purchases, nil
}

// Screener column layout:
// 0 X, 1 filing date, 2 trade date, 3 ticker, 4 company, 5 insider name,
// 6 title, 7 trade type, 8 price, 9 qty, 10 owned, 11 dOwn, 12 value
func parseRow(cells []string) (Purchase, bool) {
	if len(cells) < 13 {
		return Purchase{}, false
	}

	symbol := strings.ToUpper(strings.TrimSpace(cells[3]))
	if symbol == "" {
		return Purchase{}, false
	}

	p := Purchase{
		Symbol:          symbol,
		FilerName:       strings.TrimSpace(cells[5]),
		FilerRole:       strings.TrimSpace(cells[6]),
		TransactionType: strings.TrimSpace(cells[7]),
	}

	if t, err := time.Parse("2006-01-02 15:04:05", strings.TrimSpace(cells[1])); err == nil {
		p.FilingDate = &t
	} else if t, err := time.Parse("2006-01-02", strings.TrimSpace(cells[1])); err == nil {
		p.FilingDate = &t
	}
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(cells[2])); err == nil {
		p.TransactionDate = &t
	}

	p.Price = parseMoney(cells[8])
	p.TransactionValue = parseMoney(cells[12])

	return p, true
}

// parseMoney strips $ , + from screener cells like "+$1,234,567"
func parseMoney(s string) float64 {
	cleaned := strings.NewReplacer("$", "", ",", "", "+", "", " ", "").Replace(s)
	val, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return val
}

// extractTableRows walks the document for a table with the given class and
// returns the text content of each body row's cells.
func extractTableRows(doc *html.Node, tableClass string) [][]string {
	var rows [][]string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" && hasClass(n, tableClass) {
			collectRows(n, &rows)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return rows
}

func collectRows(table *html.Node, rows *[][]string) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.ElementNode && child.Data == "td" {
					cells = append(cells, nodeText(child))
				}
			}
			if len(cells) > 0 {
				*rows = append(*rows, cells)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(table)
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}
