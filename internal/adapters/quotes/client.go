package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/riskgate/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	quotesPath = "/quotes"

	// symbols per request; longer lists are split
	maxSymbolsPerRequest = 50

	defaultRatePerSec = 5
	defaultWorkers    = 4
	defaultTimeout    = 10 * time.Second
	maxRetries        = 3
	baseRetryWait     = 500 * time.Millisecond
)

// Config configures the HTTP quote client. Zero values take defaults.
type Config struct {
	BaseURL    string
	RatePerSec float64
	Burst      int
	Timeout    time.Duration
	RetryWait  time.Duration
	Workers    int // concurrent batch requests, default 4
}

// Client polls a JSON quotes endpoint with rate limiting and retries.
// It implements ports.PriceFeed.
//
//	GET {base}/quotes?symbols=BTC,ETH
//	[{"symbol":"BTC","price":"64000.5","liquidity":"1200000","volatility":"42.1"}]
//
// price may be a JSON string or number; liquidity and volatility are optional.
type Client struct {
	http      *http.Client
	base      string
	limiter   *rate.Limiter
	retryWait time.Duration
	workers   int
}

// NewClient creates a Client for cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("quotes.NewClient: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("quotes.NewClient: base url: %w", err)
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = baseRetryWait
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		retryWait: cfg.RetryWait,
		workers:   cfg.Workers,
	}, nil
}

type quoteDTO struct {
	Symbol     string              `json:"symbol"`
	Price      decimal.Decimal     `json:"price"`
	Liquidity  decimal.NullDecimal `json:"liquidity"`
	Volatility decimal.NullDecimal `json:"volatility"`
}

// FetchQuotes returns the latest quote for each symbol the upstream knows.
// Quotes with a non-positive price are dropped.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]domain.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += maxSymbolsPerRequest {
		batches = append(batches, symbols[i:min(i+maxSymbolsPerRequest, len(symbols))])
	}

	var (
		out []domain.Quote
		err error
	)
	if len(batches) == 1 {
		out, err = c.fetchBatch(ctx, batches[0])
	} else {
		out, err = c.fetchBatchesConcurrent(ctx, batches)
	}
	if err != nil {
		return nil, fmt.Errorf("quotes.FetchQuotes: %w", err)
	}

	slog.Debug("quotes: fetched", "requested", len(symbols), "priced", len(out))
	return out, nil
}

func (c *Client) fetchBatch(ctx context.Context, batch []string) ([]domain.Quote, error) {
	u := fmt.Sprintf("%s%s?symbols=%s", c.base, quotesPath, url.QueryEscape(strings.Join(batch, ",")))
	var dtos []quoteDTO
	if err := c.get(ctx, u, &dtos); err != nil {
		return nil, err
	}
	out := make([]domain.Quote, 0, len(dtos))
	for _, q := range dtos {
		if q.Symbol == "" || !q.Price.IsPositive() {
			slog.Warn("quotes: dropping unusable quote", "symbol", q.Symbol, "price", q.Price.String())
			continue
		}
		out = append(out, domain.Quote{
			Symbol:     strings.ToUpper(q.Symbol),
			Price:      q.Price,
			Liquidity:  q.Liquidity,
			Volatility: q.Volatility,
		})
	}
	return out, nil
}

// get does a GET with rate limiting and retries.
func (c *Client) get(ctx context.Context, u string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry retries transport errors, 429 and 5xx with exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("quotes: rate limited by upstream", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep backs off exponentially, returning early if ctx is done.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
