// Package aggregator is the client for the external market-aggregator HTTP
// API: pair lookups, token pool listings and trending discovery. Responses
// are treated as untyped JSON; only a fixed field set is read.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"dexwatch/internal/domain"
	"dexwatch/internal/observability"
)

// Default client tuning.
const (
	DefaultTimeout    = 8 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryBase  = 400 * time.Millisecond
	DefaultRetryJit   = 150 * time.Millisecond
	// DefaultRatePerSec paces requests to stay inside the public API budget.
	DefaultRatePerSec = 5
)

// Errors returned by the client.
var (
	ErrNotFound    = errors.New("aggregator: not found")
	ErrUnavailable = errors.New("aggregator: upstream unavailable")
)

// Client talks to the aggregator with request pacing, retry with backoff
// and a circuit breaker around the upstream.
type Client struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
	maxRetries int
	retryBase  time.Duration
	retryJit   time.Duration
}

// Options configures a Client. Zero values take defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RatePerSec float64
	Logger     zerolog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	perSec := opts.RatePerSec
	if perSec == 0 {
		perSec = DefaultRatePerSec
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "aggregator",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL:    opts.BaseURL,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSec), int(perSec)),
		breaker:    breaker,
		log:        opts.Logger,
		maxRetries: maxRetries,
		retryBase:  DefaultRetryBase,
		retryJit:   DefaultRetryJit,
	}
}

// Pair fetches one pair by chain slug and pool address.
func (c *Client) Pair(ctx context.Context, chain domain.Chain, pair string) (*PairInfo, error) {
	body, err := c.get(ctx, "pairs", fmt.Sprintf("/latest/dex/pairs/%s/%s", chain.Slug(), pair))
	if err != nil {
		return nil, err
	}
	pairs := parsePairsPayload(body)
	if len(pairs) == 0 {
		return nil, ErrNotFound
	}
	return &pairs[0], nil
}

// TokenPairs lists all pools the aggregator knows for a token, across chains.
func (c *Client) TokenPairs(ctx context.Context, token string) ([]PairInfo, error) {
	body, err := c.get(ctx, "tokens", fmt.Sprintf("/latest/dex/tokens/%s", token))
	if err != nil {
		return nil, err
	}
	return parsePairsPayload(body), nil
}

// Trending returns the chain's top trending pairs, at most limit entries.
// When the trending endpoint is unavailable, a substitute list is synthesized
// from the top pools of each base token.
func (c *Client) Trending(ctx context.Context, chain domain.Chain, limit int) ([]PairInfo, error) {
	body, err := c.get(ctx, "trending", fmt.Sprintf("/latest/dex/trending?chain=%s&limit=%d", chain.Slug(), limit))
	if err == nil {
		pairs := parsePairsPayload(body)
		if len(pairs) > limit {
			pairs = pairs[:limit]
		}
		return pairs, nil
	}

	c.log.Debug().Err(err).Str("chain", string(chain)).Msg("trending endpoint unavailable, synthesizing from base-token pools")
	return c.synthesizeTrending(ctx, chain, limit)
}

// synthesizeTrending approximates trending by collecting each base token's
// pools on the chain and ranking by reported liquidity.
func (c *Client) synthesizeTrending(ctx context.Context, chain domain.Chain, limit int) ([]PairInfo, error) {
	seen := make(map[string]struct{})
	var out []PairInfo
	var lastErr error

	for _, bt := range domain.BaseTokens(chain) {
		pairs, err := c.TokenPairs(ctx, bt.Address)
		if err != nil {
			lastErr = err
			continue
		}
		for _, p := range pairs {
			if p.ChainSlug != chain.Slug() {
				continue
			}
			if _, dup := seen[p.PairAddress]; dup {
				continue
			}
			seen[p.PairAddress] = struct{}{}
			out = append(out, p)
		}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LiquidityUSD > out[j].LiquidityUSD })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// get performs one GET with pacing, circuit breaking and retry on
// 403/429/5xx, backing off exponentially with jitter between attempts.
// Each attempt records its latency and outcome under the endpoint label.
func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	delay := c.retryBase
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			jitter := time.Duration(rand.Int63n(int64(c.retryJit)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay + jitter):
			}
			delay *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doGet(ctx, path)
		})
		observability.RecordAggregatorRequest(endpoint, time.Since(start).Seconds(), err)
		if err == nil {
			return result.([]byte), nil
		}

		lastErr = err
		if errors.Is(err, ErrNotFound) || errors.Is(err, gobreaker.ErrOpenState) {
			// Not found never heals on retry; open breaker means back off
			// entirely until its timeout elapses.
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
