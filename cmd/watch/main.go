// Command watch runs the live market watcher: it discovers new and trending
// pools on BSC and Ethereum, screens them through the admission gate, and
// emits alerts on anomalous trading activity.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dexwatch/internal/aggregator"
	"dexwatch/internal/alert"
	"dexwatch/internal/config"
	"dexwatch/internal/domain"
	"dexwatch/internal/evm"
	"dexwatch/internal/fdv"
	"dexwatch/internal/gate"
	"dexwatch/internal/ingress"
	"dexwatch/internal/observability"
	"dexwatch/internal/pricing"
	"dexwatch/internal/subscriber"
	"dexwatch/internal/tax"
	"dexwatch/internal/watchlist"
	"dexwatch/internal/window"
)

const (
	healthInterval = 60 * time.Second
	sweepInterval  = 5 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (environment overrides)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		sig = <-sigCh
		logger.Warn().Str("signal", sig.String()).Msg("forcing immediate exit")
		os.Exit(1)
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	if err := run(ctx, cfg, logger); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("watcher exited")
		os.Exit(1)
	}
	logger.Info().Msg("watcher stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	endpoints := map[domain.Chain]string{
		domain.ChainBSC: cfg.BSCWSS,
		domain.ChainETH: cfg.ETHWSS,
	}

	callers := make(map[domain.Chain]evm.Caller, len(endpoints))
	streams := make(map[domain.Chain]evm.LogStreamer, len(endpoints))
	for chain, endpoint := range endpoints {
		client, err := evm.Dial(ctx, endpoint, nil, logger.With().Str("chain", string(chain)).Logger())
		if err != nil {
			return fmt.Errorf("dial %s node: %w", chain, err)
		}
		defer client.Close()
		callers[chain] = client
		streams[chain] = client
	}

	agg := aggregator.New(aggregator.Options{
		BaseURL: cfg.AggregatorBaseURL,
		Timeout: time.Duration(cfg.HTTPTimeout),
	})

	decimals := pricing.NewDecimalsCache(callers, logger)
	oracle := pricing.NewOracle(agg, logger)
	pricer := pricing.NewPricer(callers, decimals, oracle, agg, logger)

	watch := watchlist.New(logger)
	windows := window.NewStore(0)
	fdvTracker := fdv.NewTracker()
	taxes := tax.NewEstimator()

	probes := gate.NewProbes(callers, pricer, agg, logger)
	gatePipe := gate.NewPipeline(probes, watch, taxes, cfg.Strategy, logger)

	alerts := alert.NewEvaluator(
		windows, fdvTracker, pricer, callers,
		alert.NewLogNotifier(logger), cfg.Strategy, logger,
	)

	slots := subscriber.NewSlots(cfg.Strategy.MaxActiveMarkets)
	subs := subscriber.NewManager(subscriber.Options{
		Streams: streams,
		Pricer:  pricer,
		Watch:   watch,
		Windows: windows,
		Taxes:   taxes,
		Agg:     agg,
		Alerts:  alerts,
		Slots:   slots,
		Logger:  logger,
	})
	defer slots.ReleaseAll()

	ing := ingress.New(ingress.Options{
		Streams:  streams,
		Agg:      agg,
		Watch:    watch,
		Gate:     gatePipe,
		Subs:     subs,
		Strategy: cfg.Strategy,
		Logger:   logger,
	})

	go healthLoop(ctx, logger, watch, slots, ing)
	go sweepLoop(ctx, watch, slots, subs, windows, fdvTracker, taxes)

	logger.Info().
		Str("metrics", cfg.MetricsAddr).
		Int("max_active_markets", cfg.Strategy.MaxActiveMarkets).
		Msg("watcher started")
	return ing.Run(ctx)
}

func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server failed")
	}
}

// healthLoop logs a periodic operational summary and refreshes the
// watchlist-size gauges.
func healthLoop(ctx context.Context, logger zerolog.Logger, watch *watchlist.Watchlist, slots *subscriber.Slots, ing *ingress.Ingress) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.AddUptime(healthInterval.Seconds())
			counts := watch.CountByStatus()
			for status, n := range counts {
				observability.SetWatchlistSize(string(status), n)
			}
			ev := logger.Info().
				Int("pending", counts[domain.StatusPending]).
				Int("active", counts[domain.StatusActive]).
				Int("rejected", counts[domain.StatusRejected]).
				Int("subscribed", slots.Count()).
				Int("slots_free", slots.Free()).
				Int("dedup_entries", ing.DedupSize())
			if reasons := watch.RejectionReasons(); len(reasons) > 0 {
				ev = ev.Interface("rejections", reasons)
			}
			ev.Msg("health summary")
		}
	}
}

// sweepLoop evicts idle watchlist entries, releases their resources, and
// re-subscribes backlogged active markets when slots free up.
func sweepLoop(
	ctx context.Context,
	watch *watchlist.Watchlist,
	slots *subscriber.Slots,
	subs *subscriber.Manager,
	windows *window.Store,
	fdvTracker *fdv.Tracker,
	taxes *tax.Estimator,
) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range watch.Sweep() {
				subs.Unsubscribe(key)
				windows.Drop(key)
				fdvTracker.Drop(key)
				taxes.Drop(key)
			}

			// Markets that stayed active through a slot famine pick up the
			// freed slots here.
			for _, key := range watch.ActiveKeys() {
				if slots.Free() <= 0 {
					break
				}
				if slots.Has(key) {
					continue
				}
				if err := subs.Subscribe(ctx, key); err != nil {
					break
				}
			}

			nowMs := time.Now().UnixMilli()
			windows.SweepIdle()
			fdvTracker.Sweep(nowMs)
			taxes.Sweep(nowMs)
		}
	}
}
