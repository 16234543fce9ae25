package lifi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://li.quest/v1"

// QuoteError is any failure to obtain a usable quote.
type QuoteError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *QuoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("quote: http %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("quote: http %d", e.StatusCode)
	}
	return fmt.Sprintf("quote: %v", e.Err)
}

func (e *QuoteError) Unwrap() error { return e.Err }

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	RPS     float64
	// Transport carries the outbound proxy selection, if any.
	Transport     http.RoundTripper
	RandomChance  float64
	FastThreshold float64
	Rand          *rand.Rand
	Logger        logrus.FieldLogger
}

// Client calls the aggregator quote endpoint. Safe for concurrent use.
type Client struct {
	BaseURL       string
	APIKey        string
	RandomChance  float64
	FastThreshold float64
	HTTP          *http.Client

	limiter *rate.Limiter
	mu      sync.Mutex
	rng     *rand.Rand
	log     logrus.FieldLogger
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		BaseURL:       base,
		APIKey:        strings.TrimSpace(cfg.APIKey),
		RandomChance:  cfg.RandomChance,
		FastThreshold: cfg.FastThreshold,
		HTTP:          &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		limiter:       lim,
		rng:           rng,
		log:           log,
	}
}

// QuoteRequest identifies one transfer; FromAmount is in smallest units.
type QuoteRequest struct {
	FromChain   *big.Int
	ToChain     *big.Int
	FromToken   common.Address
	ToToken     common.Address
	FromAddress common.Address
	FromAmount  *big.Int
}

// DrawRoute picks a route mode with a single uniform draw in [0,100).
func (c *Client) DrawRoute() RouteMode {
	c.mu.Lock()
	r := c.rng.Float64() * 100
	c.mu.Unlock()
	return SelectRoute(r, c.RandomChance, c.FastThreshold)
}

// GetQuote draws a route mode and requests a quote constrained to it.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	return c.QuoteWithMode(ctx, req, c.DrawRoute())
}

// QuoteWithMode requests a quote for an already chosen route mode.
func (c *Client) QuoteWithMode(ctx context.Context, req QuoteRequest, mode RouteMode) (*Quote, error) {
	if req.FromChain == nil || req.ToChain == nil || req.FromAmount == nil {
		return nil, &QuoteError{Err: fmt.Errorf("chains and amount are required")}
	}

	q := url.Values{}
	q.Set("fromChain", req.FromChain.String())
	q.Set("toChain", req.ToChain.String())
	q.Set("fromToken", req.FromToken.Hex())
	q.Set("toToken", req.ToToken.Hex())
	q.Set("fromAddress", req.FromAddress.Hex())
	q.Set("fromAmount", req.FromAmount.String())
	if b := mode.AllowBridges(); b != "" {
		q.Set("allowBridges", b)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &QuoteError{Err: err}
	}
	u := c.BaseURL + "/quote?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &QuoteError{Err: err}
	}
	httpReq.Header.Set("accept", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("x-lifi-api-key", c.APIKey)
	}

	c.log.WithField("mode", mode).Debugf("[quote] GET %s", u)
	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, &QuoteError{Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &QuoteError{Err: fmt.Errorf("read body: %w", err)}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &QuoteError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out quoteResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &QuoteError{Err: fmt.Errorf("failed to decode quote response: %w", err)}
	}
	quote, err := out.toQuote(mode, req.FromAmount)
	if err != nil {
		return nil, &QuoteError{Err: err}
	}
	return quote, nil
}
