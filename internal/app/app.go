package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/marketplace-analyzer/internal/analysis"
	"github.com/maltedev/marketplace-analyzer/internal/browser"
	"github.com/maltedev/marketplace-analyzer/internal/cache"
	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/database"
	"github.com/maltedev/marketplace-analyzer/internal/fetch"
	"github.com/maltedev/marketplace-analyzer/internal/resolver"
	"github.com/maltedev/marketplace-analyzer/internal/scraper"
)

const pingTimeout = 5 * time.Second

// Options selects the optional parts of the pipeline.
type Options struct {
	FastResolve bool
	NoCache     bool

	// Outbox records every successful analysis in Postgres when a
	// database is configured.
	Outbox bool
}

// App owns the analyzer and the connections behind it.
type App struct {
	Analyzer *analysis.Analyzer
	Redis    *redis.Client
	DB       *database.DB
	Outbox   *database.OutboxRepository

	closers []func() error
	logger  *slog.Logger
}

// Build wires fetch, resolver, scrapers and analyzer, plus the Redis cache
// and the Postgres outbox when they are configured.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := &App{logger: logger.With("component", "app")}

	fetchOpts := []fetch.Option{fetch.WithLogger(logger)}
	if cfg.Browser.Enabled {
		ua := ""
		if len(cfg.Scraper.UserAgents) > 0 {
			ua = cfg.Scraper.UserAgents[0]
		}
		b, err := browser.New(browser.OptionsFromConfig(cfg.Browser, ua), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		fetchOpts = append(fetchOpts, fetch.WithRenderer(b))
	}

	client := fetch.New(cfg.Scraper, fetchOpts...)
	res := resolver.New(client, cfg.Scraper, logger)

	registry := scraper.NewRegistry(
		scraper.NewAmazonScraper(client, cfg.Scraper, logger),
		scraper.NewFlipkartScraper(client, res, cfg.Scraper, logger, scraper.WithFastResolve(opts.FastResolve)),
	)

	analyzerOpts := []analysis.Option{
		analysis.WithFastResolve(opts.FastResolve),
		analysis.WithProxyKey(client.HasAPIKey()),
	}

	if cfg.Redis.Enabled() && (!opts.NoCache || opts.Outbox) {
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = rdb
		a.closers = append(a.closers, rdb.Close)

		if !opts.NoCache {
			analyzerOpts = append(analyzerOpts, analysis.WithCache(cache.NewAnalysisCache(rdb, cfg.Redis, logger)))
		}
	}

	if opts.Outbox && cfg.Database.Enabled() {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })

		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		a.Outbox = database.NewOutboxRepository(db, cfg.Redis.Stream)
		analyzerOpts = append(analyzerOpts, analysis.WithPublisher(database.NewAnalysisStore(db, a.Outbox, logger)))
	}

	a.Analyzer = analysis.New(registry, res, logger, analyzerOpts...)

	a.logger.Info("analyzer ready",
		"proxy_key", client.HasAPIKey(),
		"browser", cfg.Browser.Enabled,
		"cache", a.Redis != nil && !opts.NoCache,
		"outbox", a.Outbox != nil)

	return a, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
