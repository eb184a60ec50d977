package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
)

// FallbackDecimals is assumed when a decimals() read fails.
const FallbackDecimals = 18

// DecimalsCache caches ERC20 decimals per (chain, token). Entries never
// expire: decimals are immutable on every token that matters.
type DecimalsCache struct {
	nodes map[domain.Chain]evm.Caller
	log   zerolog.Logger

	mu    sync.RWMutex
	known map[string]int
}

// NewDecimalsCache creates a cache over the given chain nodes.
func NewDecimalsCache(nodes map[domain.Chain]evm.Caller, logger zerolog.Logger) *DecimalsCache {
	return &DecimalsCache{
		nodes: nodes,
		log:   logger,
		known: make(map[string]int),
	}
}

func decimalsKey(chain domain.Chain, token string) string {
	return fmt.Sprintf("%d|%s", chain.ID(), domain.NormalizeAddress(token))
}

// Get returns the token's decimals, reading through to the chain on a miss.
// A failed read falls back to 18 without caching, so a later read can heal.
func (c *DecimalsCache) Get(ctx context.Context, chain domain.Chain, token string) int {
	key := decimalsKey(chain, token)

	c.mu.RLock()
	dec, ok := c.known[key]
	c.mu.RUnlock()
	if ok {
		return dec
	}

	node := c.nodes[chain]
	if node == nil {
		return FallbackDecimals
	}

	dec, err := evm.ERC20Decimals(ctx, node, token)
	if err != nil {
		c.log.Debug().Err(err).Str("token", token).Msg("decimals read failed, assuming 18")
		return FallbackDecimals
	}

	c.mu.Lock()
	c.known[key] = dec
	c.mu.Unlock()
	return dec
}

// Put seeds the cache, for tests and for tokens with known decimals.
func (c *DecimalsCache) Put(chain domain.Chain, token string, decimals int) {
	c.mu.Lock()
	c.known[decimalsKey(chain, token)] = decimals
	c.mu.Unlock()
}
