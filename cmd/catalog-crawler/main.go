package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/catalog-crawler/internal/api"
	"github.com/maltedev/catalog-crawler/internal/browser"
	"github.com/maltedev/catalog-crawler/internal/config"
	"github.com/maltedev/catalog-crawler/internal/database"
	"github.com/maltedev/catalog-crawler/internal/events"
	"github.com/maltedev/catalog-crawler/internal/logging"
	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/ratelimit"
	"github.com/maltedev/catalog-crawler/internal/retry"
	"github.com/maltedev/catalog-crawler/internal/scraper"
	"github.com/maltedev/catalog-crawler/internal/session"
	"github.com/maltedev/catalog-crawler/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	m := metrics.New()

	sink, closeSinks, err := buildSink(ctx, cfg, runID, logger)
	if err != nil {
		logger.Error("failed to set up sinks", "error", err)
		return 1
	}
	defer closeSinks()

	discoverer, err := buildDiscoverer(cfg, logger)
	if err != nil {
		logger.Error("failed to set up category discovery", "error", err)
		return 1
	}

	timings := timingsFrom(cfg.Crawl)
	orchestrator := scraper.NewOrchestrator(
		buildBootstrapper(cfg, timings, logger),
		discoverer,
		buildCategoryCrawler(cfg, timings, m, logger),
		sink,
		scraper.OrchestratorOptions{
			RunID:          runID,
			TargetQuota:    cfg.Crawl.TargetQuota,
			PersistTimeout: cfg.Crawl.PersistTimeout,
			Metrics:        m,
		},
		logger,
	)

	if cfg.Server.Addr != "" {
		handlers := api.NewHandlers(orchestrator.Progress(), logger)
		server := api.NewServer(cfg.Server.Addr, api.NewRouter(handlers, m, cfg.Server.AllowedOrigins), logger)
		server.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown failed", "error", err)
			}
		}()
	}

	result := orchestrator.Run(ctx)

	logger.Info("run complete",
		"run_id", result.RunID,
		"status", result.Status.String(),
		"records", len(result.Records),
		"categories", len(result.Categories),
		"exit_code", result.Status.ExitCode(),
	)
	if result.Err != nil {
		logger.Error("run ended with error", "error", result.Err)
	}

	return result.Status.ExitCode()
}

func timingsFrom(c config.CrawlConfig) scraper.Timings {
	return scraper.Timings{
		GridWait:      c.GridWait,
		ListingWait:   c.ListingWait,
		ResultsWait:   c.ResultsWait,
		NextPageWait:  c.NextPageWait,
		ContentWait:   c.ContentWait,
		ScrollSettle:  c.ScrollSettle,
		AdvanceSettle: c.AdvanceSettle,
		ClickSettle:   c.ClickSettle,
		LoginSettle:   c.LoginSettle,
		RetryDelay:    c.RetryDelay,
	}
}

func browserOptions(c config.BrowserConfig) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = c.Headless
	opts.Timeout = c.Timeout
	opts.ViewportWidth = c.ViewportWidth
	opts.ViewportHeight = c.ViewportHeight
	opts.Locale = c.Locale
	opts.TimezoneID = c.TimezoneID
	if c.UserAgent != "" {
		opts.UserAgent = c.UserAgent
	}
	return opts
}

func newOpener(c config.BrowserConfig, logger *slog.Logger) scraper.Opener {
	opts := browserOptions(c)
	return func(ctx context.Context) (session.Session, error) {
		return browser.Open(ctx, c.Backend, opts, logger)
	}
}

func buildBootstrapper(cfg *config.Config, timings scraper.Timings, logger *slog.Logger) scraper.Bootstrapper {
	open := newOpener(cfg.Browser, logger)
	if cfg.Site.Bootstrap == "none" {
		return scraper.NewDirectBootstrap(open, cfg.Site.StartURL)
	}
	return scraper.NewGuestBootstrap(open, cfg.Site.HomeURL, cfg.Site.Zip, scraper.DefaultSelectors(), timings, logger)
}

func buildDiscoverer(cfg *config.Config, logger *slog.Logger) (scraper.Discoverer, error) {
	if len(cfg.Site.Categories) == 0 {
		return scraper.NewGridDiscovery(scraper.DefaultCategorySeeds(), scraper.DefaultSelectors(), timingsFrom(cfg.Crawl), logger), nil
	}
	categories, err := scraper.ParseCategories(cfg.Site.Categories)
	if err != nil {
		return nil, err
	}
	return scraper.NewStaticDiscovery(categories), nil
}

func buildCategoryCrawler(cfg *config.Config, timings scraper.Timings, m *metrics.Metrics, logger *slog.Logger) *scraper.CategoryCrawler {
	selectors := scraper.DefaultSelectors()
	backoff := retry.Backoff{Delay: cfg.Crawl.RetryDelay, MaxDelay: cfg.Crawl.MaxRetryDelay}

	var limiter ratelimit.RateLimiter = ratelimit.Noop{}
	if cfg.Crawl.RequestDelayMax > 0 {
		limiter = ratelimit.NewJitterLimiter(cfg.Crawl.RequestDelayMin, cfg.Crawl.RequestDelayMax)
	}

	links := scraper.NewLinkCollector(selectors, timings,
		retry.Policy{MaxTries: cfg.Crawl.LinkTries, Backoff: backoff}, m, logger)
	pages := scraper.NewPaginator(selectors, timings, cfg.Crawl.PageSize, logger)
	extractor := scraper.NewProductExtractor(scraper.ExtractorOptions{
		Selectors: selectors,
		Timings:   timings,
		Policy:    retry.Policy{MaxTries: cfg.Crawl.ExtractTries, Backoff: backoff},
		Usability: models.UsabilityPolicy{MinFields: cfg.Crawl.MinValidFields},
		Limiter:   limiter,
		Metrics:   m,
	}, logger)

	var seen *scraper.SeenSet
	if cfg.Crawl.DedupeProducts {
		s, err := scraper.NewSeenSet(cfg.Crawl.DedupeSize)
		if err != nil {
			logger.Warn("product dedupe disabled", "error", err)
		} else {
			seen = s
		}
	}

	return scraper.NewCategoryCrawler(links, pages, extractor, scraper.CategoryCrawlerOptions{
		BreakerThreshold: cfg.Crawl.BreakerThreshold,
		KeepPartial:      cfg.Crawl.KeepPartial,
		Seen:             seen,
		Metrics:          m,
	}, logger)
}

// buildSink connects every configured sink. The returned func releases their
// connections.
func buildSink(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) (storage.Sink, func(), error) {
	var sinks []storage.Sink
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.HasSink("csv") {
		sinks = append(sinks, storage.NewCSVSink(cfg.Output.Dir, cfg.Output.Prefix, logger))
	}

	if cfg.HasSink("postgres") {
		db, err := database.New(ctx, database.Config{
			URL:         cfg.Database.URL,
			MaxConns:    cfg.Database.MaxConns,
			MaxConnLife: cfg.Database.MaxConnLife,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		closers = append(closers, db.Close)

		store := database.NewRecordStore(db, runID, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, store)
	}

	if cfg.HasSink("redis") {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			closeAll()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		publisher := events.NewStreamPublisher(client, runID, events.PublisherConfig{
			Stream: cfg.Redis.Stream,
			MaxLen: cfg.Redis.MaxLen,
		}, logger)
		closers = append(closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		})
		sinks = append(sinks, publisher)
	}

	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return storage.NewMultiSink(logger, sinks...), closeAll, nil
}
