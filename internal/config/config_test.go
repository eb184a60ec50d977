package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingEndpoints(t *testing.T) {
	t.Setenv("BSC_WSS", "")
	t.Setenv("ETH_WSS", "")

	_, err := Load("")
	require.ErrorIs(t, err, ErrMissingEndpoint)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BSC_WSS", "wss://bsc.example/ws")
	t.Setenv("ETH_WSS", "wss://eth.example/ws")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000.0, cfg.Strategy.MinLiqUSD)
	assert.Equal(t, 8, cfg.Strategy.BuyTxs1m)
	assert.Equal(t, 0.03, cfg.Strategy.WhaleLiquidityRatio)
	assert.Equal(t, Duration(60*time.Second), cfg.Strategy.TrendingPollInterval)
	assert.Equal(t, 50, cfg.Strategy.TrendingTopK)
	assert.Equal(t, 0.20, cfg.Strategy.MaxTaxPct)
	assert.Equal(t, DefaultAggregatorBaseURL, cfg.AggregatorBaseURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BSC_WSS", "wss://bsc.example/ws")
	t.Setenv("ETH_WSS", "wss://eth.example/ws")
	t.Setenv("MIN_LIQ_USD", "12000")
	t.Setenv("MAX_ACTIVE_MARKETS", "10")
	t.Setenv("TRENDING_POLL_INTERVAL_MS", "15000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 12000.0, cfg.Strategy.MinLiqUSD)
	assert.Equal(t, 10, cfg.Strategy.MaxActiveMarkets)
	assert.Equal(t, Duration(15*time.Second), cfg.Strategy.TrendingPollInterval)
}

func TestLoad_FileDurationForms(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.yaml")
	// Durations accept both Go duration strings and integer nanoseconds.
	body := []byte("bsc_wss: wss://file.bsc/ws\neth_wss: wss://file.eth/ws\nhttp_timeout: 3s\nstrategy:\n  trending_poll_interval: 45000000000\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	t.Setenv("BSC_WSS", "")
	t.Setenv("ETH_WSS", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Duration(3*time.Second), cfg.HTTPTimeout)
	assert.Equal(t, Duration(45*time.Second), cfg.Strategy.TrendingPollInterval)
}

func TestLoad_FileBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.yaml")
	body := []byte("bsc_wss: wss://file.bsc/ws\neth_wss: wss://file.eth/ws\nhttp_timeout: soon\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soon")
}

func TestLoad_FileUnderEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watch.yaml")
	body := []byte("bsc_wss: wss://file.bsc/ws\neth_wss: wss://file.eth/ws\nstrategy:\n  min_liq_usd: 9000\n  buy_txs_1m: 4\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	t.Setenv("BSC_WSS", "wss://env.bsc/ws")
	t.Setenv("ETH_WSS", "")
	t.Setenv("BUY_TXS_1M", "6")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env wins over file; file wins over defaults.
	assert.Equal(t, "wss://env.bsc/ws", cfg.BSCWSS)
	assert.Equal(t, "wss://file.eth/ws", cfg.ETHWSS)
	assert.Equal(t, 9000.0, cfg.Strategy.MinLiqUSD)
	assert.Equal(t, 6, cfg.Strategy.BuyTxs1m)
}
