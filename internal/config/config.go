// Package config loads runtime configuration from the environment with an
// optional YAML file underneath. Precedence: defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for strategy thresholds and operational knobs.
const (
	DefaultMinLiqUSD            = 5000.0
	DefaultBuyVol1mUSD          = 15000.0
	DefaultBuyTxs1m             = 8
	DefaultVolumeMultiplier     = 5.0
	DefaultFdvMultiplier        = 3.0
	DefaultWhaleSingleBuyUSD    = 5000.0
	DefaultWhaleLiquidityRatio  = 0.03
	DefaultMaxActiveMarkets     = 80
	DefaultTrendingPollInterval = 60 * time.Second
	DefaultTrendingMinLiqUSD    = 5000.0
	DefaultTrendingTopK         = 50
	DefaultMaxTaxPct            = 0.20
	DefaultHTTPTimeout          = 8 * time.Second
	DefaultMetricsAddr          = ":9090"
	DefaultAggregatorBaseURL    = "https://api.dexscreener.com"
)

// ErrMissingEndpoint is returned when a required chain endpoint is absent.
var ErrMissingEndpoint = errors.New("missing required chain endpoint")

// Duration is a time.Duration that decodes from YAML as either a Go duration
// string ("8s", "2m30s") or integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full runtime configuration.
type Config struct {
	BSCWSS string `yaml:"bsc_wss"`
	ETHWSS string `yaml:"eth_wss"`

	AggregatorBaseURL string   `yaml:"aggregator_base_url"`
	HTTPTimeout       Duration `yaml:"http_timeout"`
	MetricsAddr       string   `yaml:"metrics_addr"`
	LogLevel          string   `yaml:"log_level"`

	Strategy Strategy `yaml:"strategy"`
}

// Strategy holds the alerting and admission thresholds.
type Strategy struct {
	MinLiqUSD            float64  `yaml:"min_liq_usd"`
	BuyVol1mUSD          float64  `yaml:"buy_vol_1m_usd"`
	BuyTxs1m             int      `yaml:"buy_txs_1m"`
	VolumeMultiplier     float64  `yaml:"volume_multiplier"`
	FdvMultiplier        float64  `yaml:"fdv_multiplier"`
	WhaleSingleBuyUSD    float64  `yaml:"whale_single_buy_usd"`
	WhaleLiquidityRatio  float64  `yaml:"whale_liquidity_ratio"`
	MaxActiveMarkets     int      `yaml:"max_active_markets"`
	TrendingPollInterval Duration `yaml:"trending_poll_interval"`
	TrendingMinLiqUSD    float64  `yaml:"trending_min_liq_usd"`
	TrendingTopK         int      `yaml:"trending_top_k"`
	MaxTaxPct            float64  `yaml:"max_tax_pct"`
}

// DefaultStrategy returns the documented strategy defaults.
func DefaultStrategy() Strategy {
	return Strategy{
		MinLiqUSD:            DefaultMinLiqUSD,
		BuyVol1mUSD:          DefaultBuyVol1mUSD,
		BuyTxs1m:             DefaultBuyTxs1m,
		VolumeMultiplier:     DefaultVolumeMultiplier,
		FdvMultiplier:        DefaultFdvMultiplier,
		WhaleSingleBuyUSD:    DefaultWhaleSingleBuyUSD,
		WhaleLiquidityRatio:  DefaultWhaleLiquidityRatio,
		MaxActiveMarkets:     DefaultMaxActiveMarkets,
		TrendingPollInterval: Duration(DefaultTrendingPollInterval),
		TrendingMinLiqUSD:    DefaultTrendingMinLiqUSD,
		TrendingTopK:         DefaultTrendingTopK,
		MaxTaxPct:            DefaultMaxTaxPct,
	}
}

// Default returns a Config with all defaults applied and no endpoints set.
func Default() Config {
	return Config{
		AggregatorBaseURL: DefaultAggregatorBaseURL,
		HTTPTimeout:       Duration(DefaultHTTPTimeout),
		MetricsAddr:       DefaultMetricsAddr,
		LogLevel:          "info",
		Strategy:          DefaultStrategy(),
	}
}

// Load builds the configuration. path may be empty; when set, the YAML file
// is layered over the defaults before the environment is applied.
// Returns ErrMissingEndpoint if BSC_WSS or ETH_WSS resolves to empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.BSCWSS == "" {
		return Config{}, fmt.Errorf("%w: BSC_WSS", ErrMissingEndpoint)
	}
	if cfg.ETHWSS == "" {
		return Config{}, fmt.Errorf("%w: ETH_WSS", ErrMissingEndpoint)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	envStr("BSC_WSS", &c.BSCWSS)
	envStr("ETH_WSS", &c.ETHWSS)
	envStr("AGGREGATOR_BASE_URL", &c.AggregatorBaseURL)
	envStr("METRICS_ADDR", &c.MetricsAddr)
	envStr("LOG_LEVEL", &c.LogLevel)

	s := &c.Strategy
	envFloat("MIN_LIQ_USD", &s.MinLiqUSD)
	envFloat("BUY_VOL_1M_USD", &s.BuyVol1mUSD)
	envInt("BUY_TXS_1M", &s.BuyTxs1m)
	envFloat("VOLUME_MULTIPLIER", &s.VolumeMultiplier)
	envFloat("FDV_MULTIPLIER", &s.FdvMultiplier)
	envFloat("WHALE_SINGLE_BUY_USD", &s.WhaleSingleBuyUSD)
	envFloat("WHALE_LIQUIDITY_RATIO", &s.WhaleLiquidityRatio)
	envInt("MAX_ACTIVE_MARKETS", &s.MaxActiveMarkets)
	envMillis("TRENDING_POLL_INTERVAL_MS", &s.TrendingPollInterval)
	envFloat("TRENDING_MIN_LIQ_USD", &s.TrendingMinLiqUSD)
	envInt("TRENDING_TOP_K", &s.TrendingTopK)
	envFloat("MAX_TAX_PCT", &s.MaxTaxPct)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envMillis(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			*dst = Duration(time.Duration(n) * time.Millisecond)
		}
	}
}
