package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.binance.com/api/v3"

var stablecoins = map[string]bool{"USDC": true, "USDT": true, "DAI": true, "USDC.E": true}

// Client looks up USD prices for reporting. Prices never feed transaction amounts.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	limiter *rate.Limiter
}

func NewClient(baseURL string, transport http.RoundTripper) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 12 * time.Second, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
}

// Price returns the USD price of symbol: 1 for stablecoins, otherwise the
// <SYM>USDT ticker, falling back to <SYM>USDC.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if stablecoins[sym] {
		return decimal.NewFromInt(1), nil
	}
	var lastErr error
	for _, quote := range []string{"USDT", "USDC"} {
		p, err := c.ticker(ctx, sym+quote)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return decimal.Zero, fmt.Errorf("no price for %s: %w", sym, lastErr)
}

func (c *Client) ticker(ctx context.Context, pair string) (decimal.Decimal, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return decimal.Zero, err
	}
	q := url.Values{}
	q.Set("symbol", pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/ticker/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("ticker %s: http %d: %s", pair, res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", pair, err)
	}
	if out.Price == "" {
		return decimal.Zero, fmt.Errorf("ticker %s: no price in response", pair)
	}
	return decimal.NewFromString(out.Price)
}
