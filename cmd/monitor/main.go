package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/admin"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/alert"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/config"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/handlers"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger/algod"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger/indexer"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/ledger/ratelimit"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/dispatcher"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/fetcher"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/matcher"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/pipeline/retry"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/tracing"
)

const serviceName = "algorand-dex-monitor"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting dex monitor",
		"algod", cfg.Algod.URL,
		"indexer", cfg.Indexer.URL,
		"subscription", cfg.Subscription.Name,
		"sync_behaviour", cfg.Subscription.SyncBehaviour,
		"max_rounds_to_sync", cfg.Subscription.MaxRoundsToSync,
		"wait_for_block_when_at_tip", cfg.Subscription.WaitForBlockWhenAtTip,
		"filters", len(cfg.Filters),
	)

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), tracing.Config{
		ServiceName: serviceName,
		Endpoint:    tracingEndpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watermarks, err := store.Open(ctx, cfg.Store.URL, store.Options{
		RedisKey:             cfg.Store.RedisKey,
		PGMaxOpenConns:       cfg.Store.PGMaxOpenConns,
		PGMaxIdleConns:       cfg.Store.PGMaxIdleConns,
		PGConnMaxLifetime:    cfg.Store.PGConnMaxLifetime,
		PGStatementTimeoutMS: cfg.Store.PGStatementTimeoutMS,
	}, logger)
	if err != nil {
		logger.Error("failed to open watermark store", "error", err)
		os.Exit(1)
	}
	defer watermarks.Close()

	node, index := buildLedger(cfg, logger)
	if _, err := checkNode(ctx, node, cfg.RPC.Timeout, logger); err != nil {
		logger.Error("algod is not reachable", "url", cfg.Algod.URL, "error", err)
		os.Exit(1)
	}
	p, err := buildPipeline(cfg, node, index, watermarks, logger)
	if err != nil {
		logger.Error("failed to build subscription", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	rl := admin.NewRateLimitMiddleware(admin.DefaultRules, cfg.Server.TrustProxyHeaders, logger)
	defer rl.Stop()
	server := admin.NewServer(p, logger, admin.WithRateLimiter(rl))
	g.Go(func() error {
		return server.Run(gCtx, cfg.Server.HealthPort)
	})

	g.Go(func() error {
		return p.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("monitor exited with error", "error", err, "state", p.State())
		os.Exit(1)
	}
	logger.Info("monitor shut down gracefully", "watermark", p.Watermark())
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildLedger returns the guarded node and, when INDEXER_URL is set, the
// guarded index. Each service gets its own limiter and breaker.
func buildLedger(cfg *config.Config, logger *slog.Logger) (ledger.Node, ledger.Index) {
	guard := func(service string) *ledger.Guard {
		return ledger.NewGuard(service,
			ratelimit.NewLimiter(cfg.RPC.RateLimitRPS, cfg.RPC.RateLimitBurst, service),
			ledger.NewBreaker(service, cfg.RPC.BreakerFailureThreshold, cfg.RPC.BreakerOpenTimeout),
		)
	}

	node := ledger.GuardNode(algod.NewClient(cfg.Algod.URL, cfg.Algod.Token, cfg.RPC.Timeout, logger), guard("algod"))
	if cfg.Indexer.URL == "" {
		logger.Info("indexer disabled; catch-up replays blocks from algod")
		return node, nil
	}
	index := ledger.GuardIndex(indexer.NewClient(cfg.Indexer.URL, cfg.Indexer.Token, cfg.RPC.Timeout, logger), guard("indexer"))
	return node, index
}

func buildPipeline(cfg *config.Config, node ledger.Node, index ledger.Index, watermarks store.WatermarkStore, logger *slog.Logger) (*pipeline.Pipeline, error) {
	filters, err := cfg.FilterSet()
	if err != nil {
		return nil, err
	}

	catalog := handlers.NewCatalog(logger, handlers.Options{
		StatsInterval: cfg.Handlers.StatsInterval,
		Idempotent:    cfg.Handlers.Idempotent,
	})
	registry := dispatcher.NewRegistry(filters)
	if err := bindHandlers(registry, catalog, cfg.Filters); err != nil {
		return nil, err
	}

	f := fetcher.New(node, index, filters, fetcher.Config{
		MaxBatch:    cfg.Subscription.MaxRoundsToSync,
		Concurrency: cfg.Fetch.Concurrency,
		PageSize:    cfg.Fetch.PageSize,
		Retry: retry.Backoff{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			Initial:     cfg.Fetch.BackoffInitial,
			Max:         cfg.Fetch.BackoffMax,
		},
		CacheCapacity: cfg.Fetch.CacheCapacity,
		CacheTTL:      cfg.Fetch.CacheTTL,
	}, logger)
	if cfg.Subscription.SyncBehaviour == model.SyncCatchupWithIndexer && !f.CanIndex() {
		logger.Warn("catch-up will replay blocks sequentially; the index is disabled or a filter cannot be expressed as an index query")
	}

	m := matcher.New(filters, cfg.Dispatch.MatchWorkers, logger)
	d := dispatcher.New(registry, dispatcher.Config{
		HandlerTimeout: cfg.Dispatch.HandlerTimeout,
		Workers:        cfg.Dispatch.DispatchWorkers,
	}, logger)

	return pipeline.New(pipeline.Config{
		Subscription:          cfg.Subscription.Name,
		SyncBehaviour:         cfg.Subscription.SyncBehaviour,
		MaxRoundsToSync:       uint64(cfg.Subscription.MaxRoundsToSync),
		WaitForBlockWhenAtTip: cfg.Subscription.WaitForBlockWhenAtTip,
		PollInterval:          cfg.Subscription.PollInterval,
		BatchBackoff: retry.Backoff{
			Initial: cfg.Subscription.BatchBackoffInitial,
			Max:     cfg.Subscription.BatchBackoffMax,
		},
		MaxConsecutiveFailures: cfg.Subscription.MaxConsecutiveFailures,
		ProgressLogInterval:    uint64(cfg.Subscription.ProgressLogInterval),
		UnhealthyThreshold:     cfg.Subscription.UnhealthyThreshold,
		Alerter:                buildAlerter(cfg.Alert, logger),
	}, f, m, d, watermarks, filters.Names(), logger), nil
}

// checkNode asks the node for its latest round once so a wrong ALGOD_URL or
// token fails at startup instead of in the batch backoff loop.
func checkNode(ctx context.Context, node ledger.Node, timeout time.Duration, logger *slog.Logger) (model.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tip, err := node.Tip(ctx)
	if err != nil {
		return 0, fmt.Errorf("query node status: %w", err)
	}
	logger.Info("connected to algod", "current_round", tip)
	return tip, nil
}

// bindHandlers resolves every configured handler name against the catalog.
// Unknown names are configuration errors.
func bindHandlers(registry *dispatcher.Registry, catalog *handlers.Catalog, bindings []config.FilterBinding) error {
	for _, fb := range bindings {
		for _, name := range fb.Handlers {
			h, err := catalog.Lookup(name)
			if err != nil {
				return fmt.Errorf("filter %s: %w", fb.Name, err)
			}
			if err := registry.Bind(fb.Name, name, h); err != nil {
				return fmt.Errorf("filter %s: %w", fb.Name, err)
			}
		}
	}
	return nil
}

// buildAlerter returns nil when no alert channel is configured.
func buildAlerter(cfg config.AlertConfig, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.SlackWebhookURL))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.WebhookURL))
	}
	if len(channels) == 0 {
		return nil
	}
	return alert.NewMultiAlerter(cfg.Cooldown, logger, channels...)
}
