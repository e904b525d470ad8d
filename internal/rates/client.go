// Package rates fetches the SOL/USD rate used to express profits in SOL.
package rates

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pnl-arena/internal/config"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://api.coingecko.com/api/v3"
	defaultCacheTTL = 5 * time.Minute
	solanaID        = "solana"
	usdCurrency     = "usd"
	maxRetries      = 3
)

// ErrNoRate is returned when no rate was ever fetched successfully.
var ErrNoRate = errors.New("sol/usd rate unavailable")

// Converter converts USD amounts to SOL.
type Converter interface {
	SOLUSD(ctx context.Context) (decimal.Decimal, error)
	USDToSOL(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error)
}

// Client is a CoinGecko simple-price client with a rate cache.
// A failed refresh falls back to the last good rate, however old.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	ttl     time.Duration
	backoff time.Duration
	now     func() time.Time

	mu       sync.Mutex
	cached   decimal.Decimal
	cachedAt time.Time
}

var _ Converter = (*Client)(nil)

// NewClient creates a rates client.
func NewClient(cfg config.Rates, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	client := resty.New().SetBaseURL(baseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	return &Client{
		client:  client,
		logger:  logger.Named("rates"),
		limiter: rate.NewLimiter(limit, burst),
		ttl:     ttl,
		backoff: time.Second,
		now:     time.Now,
	}
}

type simplePriceResponse map[string]map[string]decimal.Decimal

// SOLUSD returns the USD price of one SOL.
func (c *Client) SOLUSD(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cachedAt.IsZero() && c.now().Sub(c.cachedAt) < c.ttl {
		return c.cached, nil
	}

	price, err := c.fetch(ctx)
	if err != nil {
		if !c.cachedAt.IsZero() {
			c.logger.Warn("Using stale SOL/USD rate", zap.Time("fetched_at", c.cachedAt), zap.Error(err))
			return c.cached, nil
		}
		return decimal.Zero, fmt.Errorf("%w: %w", ErrNoRate, err)
	}

	c.cached, c.cachedAt = price, c.now()
	c.logger.Info("Updated SOL/USD rate", zap.String("rate", price.String()))
	return price, nil
}

// USDToSOL converts usd at the current rate.
func (c *Client) USDToSOL(ctx context.Context, usd decimal.Decimal) (decimal.Decimal, error) {
	price, err := c.SOLUSD(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return usd.Div(price), nil
}

func (c *Client) fetch(ctx context.Context) (decimal.Decimal, error) {
	var prices simplePriceResponse
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("ids", solanaID).
		SetQueryParam("vs_currencies", usdCurrency).
		SetHeader("Accept", "application/json").
		SetResult(&prices)

	if _, err := c.doRequest(ctx, http.MethodGet, "/simple/price", req); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get sol price: %w", err)
	}

	price, ok := prices[solanaID][usdCurrency]
	if !ok || !price.IsPositive() {
		return decimal.Zero, errors.New("unexpected sol price payload")
	}
	return price, nil
}

// doRequest executes req with rate limiting, retrying throttled, 5xx and network failures
// with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)
		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration
		switch {
		case err != nil:
			shouldRetry = true
		case resp.StatusCode() == http.StatusTooManyRequests:
			shouldRetry = true
			if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		case resp.StatusCode() >= http.StatusInternalServerError:
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}
		if err == nil {
			err = fmt.Errorf("status %s", resp.Status())
		}
		if i == maxRetries-1 {
			break
		}

		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}
		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
