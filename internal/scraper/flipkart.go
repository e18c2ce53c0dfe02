package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/marketplace-analyzer/internal/botwall"
	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/fetch"
	"github.com/maltedev/marketplace-analyzer/internal/models"
	"github.com/maltedev/marketplace-analyzer/internal/parser"
	"github.com/maltedev/marketplace-analyzer/internal/resolver"
)

// maxPasses bounds the scrape to the original URL plus one retry against
// the resolved short link.
const maxPasses = 2

type FlipkartScraper struct {
	fetcher     Fetcher
	resolver    Resolver
	engine      *parser.Engine
	detector    *botwall.Detector
	cfg         config.ScraperConfig
	fastResolve bool
	logger      *slog.Logger
}

type FlipkartOption func(*FlipkartScraper)

// WithFastResolve makes the short-link retry use the fast resolve mode.
func WithFastResolve(fast bool) FlipkartOption {
	return func(s *FlipkartScraper) {
		s.fastResolve = fast
	}
}

// NewFlipkartScraper builds a scraper; r may be nil, which disables the
// resolve-and-retry pass for short links.
func NewFlipkartScraper(f Fetcher, r Resolver, cfg config.ScraperConfig, logger *slog.Logger, opts ...FlipkartOption) *FlipkartScraper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FlipkartScraper{
		fetcher:  f,
		resolver: r,
		engine:   parser.NewFlipkartEngine(parser.WithBounds(parser.PriceBounds{Min: cfg.PriceMin, Max: cfg.PriceMax})),
		detector: botwall.NewDetector(cfg.BlockThreshold),
		cfg:      cfg,
		logger:   logger.With("component", "flipkart_scraper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FlipkartScraper) Marketplace() models.Marketplace {
	return models.MarketplaceFlipkart
}

func (s *FlipkartScraper) Scrape(ctx context.Context, url string) (*models.ProductRecord, error) {
	target := url
	var lastErr error

	for pass := 0; pass < maxPasses; pass++ {
		record, err := s.scrapeOnce(ctx, target)
		if err == nil {
			return record, nil
		}
		lastErr = err

		if pass > 0 || s.resolver == nil || !resolver.IsFlipkartShortLink(target) || ctx.Err() != nil {
			break
		}
		resolved := s.resolver.Resolve(ctx, target, s.fastResolve)
		if resolved == "" || resolved == target {
			break
		}
		s.logger.Info("retrying via resolved url", "from", target, "to", resolved)
		target = resolved
	}

	return nil, lastErr
}

func (s *FlipkartScraper) scrapeOnce(ctx context.Context, url string) (*models.ProductRecord, error) {
	s.logger.Info("scraping product", "url", url)
	short := resolver.IsFlipkartShortLink(url)

	var strategies []strategy
	if short {
		strategies = append(strategies,
			strategy{name: "proxy-race", fetch: func(ctx context.Context) (*models.FetchResult, error) {
				return s.race(ctx, url)
			}},
			s.proxy(url, false, s.cfg.ShortLinkProxyTimeout),
		)
	} else {
		strategies = append(strategies, s.proxy(url, false, s.cfg.FlipkartProxyTimeout))
	}

	strategies = append(strategies, strategy{name: "direct", fetch: func(ctx context.Context) (*models.FetchResult, error) {
		return s.fetcher.Direct(ctx, url, fetch.FlipkartReferer, true)
	}})

	if !short && s.fetcher.HasAPIKey() {
		strategies = append(strategies, s.proxy(url, true, s.cfg.FlipkartProxyTimeout))
	}

	result, err := firstUsable(ctx, s.logger, s.detector, strategies...)
	if err != nil {
		s.logger.Warn("all strategies failed", "url", url, "error", err)
		return nil, fmt.Errorf("failed to fetch flipkart page: %w", err)
	}

	record, err := s.engine.ExtractHTML(result.Body, url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse flipkart page: %w", err)
	}
	if record == nil {
		return nil, ErrNoProductData
	}

	s.logger.Info("extracted product", "strategy", result.Strategy, "title", record.Title, "has_price", record.Price != nil)
	return record, nil
}

func (s *FlipkartScraper) proxy(url string, render bool, timeout time.Duration) strategy {
	name := fetch.StrategyProxy
	if render {
		name = fetch.StrategyProxyRender
	}
	return strategy{name: name, fetch: func(ctx context.Context) (*models.FetchResult, error) {
		return s.fetcher.ProxyHTML(ctx, url, render, timeout)
	}}
}

// race fetches a short link rendered and unrendered at once and keeps
// whichever usable page arrives first.
func (s *FlipkartScraper) race(ctx context.Context, url string) (*models.FetchResult, error) {
	if !s.fetcher.HasAPIKey() {
		return nil, fetch.ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RaceTimeout+s.cfg.RaceGrace)
	defer cancel()

	return race(ctx, s.detector,
		func(ctx context.Context) (*models.FetchResult, error) {
			return s.fetcher.ProxyHTML(ctx, url, false, s.cfg.RaceTimeout)
		},
		func(ctx context.Context) (*models.FetchResult, error) {
			return s.fetcher.ProxyHTML(ctx, url, true, s.cfg.RaceTimeout)
		},
	)
}
