package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/marketplace-analyzer/internal/botwall"
	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/fetch"
	"github.com/maltedev/marketplace-analyzer/internal/models"
	"github.com/maltedev/marketplace-analyzer/internal/parser"
)

// AmazonScraper tries the structured-data service first, then proxied and
// direct HTML.
type AmazonScraper struct {
	fetcher  Fetcher
	engine   *parser.Engine
	detector *botwall.Detector
	bounds   parser.PriceBounds
	logger   *slog.Logger
}

func NewAmazonScraper(f Fetcher, cfg config.ScraperConfig, logger *slog.Logger) *AmazonScraper {
	if logger == nil {
		logger = slog.Default()
	}
	bounds := parser.PriceBounds{Min: cfg.PriceMin, Max: cfg.PriceMax}
	return &AmazonScraper{
		fetcher:  f,
		engine:   parser.NewAmazonEngine(parser.WithBounds(bounds)),
		detector: botwall.NewDetector(cfg.BlockThreshold),
		bounds:   bounds,
		logger:   logger.With("component", "amazon_scraper"),
	}
}

func (s *AmazonScraper) Marketplace() models.Marketplace {
	return models.MarketplaceAmazon
}

func (s *AmazonScraper) Scrape(ctx context.Context, url string) (*models.ProductRecord, error) {
	s.logger.Info("scraping product", "url", url)

	if record := s.structured(ctx, url); record != nil {
		return record, nil
	}

	result, err := firstUsable(ctx, s.logger, s.detector,
		strategy{name: fetch.StrategyProxy, fetch: func(ctx context.Context) (*models.FetchResult, error) {
			return s.fetcher.ProxyHTML(ctx, url, false, 0)
		}},
		strategy{name: "direct", fetch: func(ctx context.Context) (*models.FetchResult, error) {
			return s.fetcher.Direct(ctx, url, fetch.AmazonReferer, false)
		}},
	)
	if err != nil {
		s.logger.Warn("all strategies failed", "url", url, "error", err)
		return nil, fmt.Errorf("failed to fetch amazon page: %w", err)
	}

	record, err := s.engine.ExtractHTML(result.Body, url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amazon page: %w", err)
	}
	if record == nil {
		return nil, ErrNoProductData
	}

	s.logger.Info("extracted product", "strategy", result.Strategy, "title", record.Title, "has_price", record.Price != nil)
	return record, nil
}

// structured returns nil unless the service produced a title or a price.
func (s *AmazonScraper) structured(ctx context.Context, url string) *models.ProductRecord {
	result, err := s.fetcher.Structured(ctx, url)
	if err != nil {
		s.logger.Debug("structured fetch skipped", "error", err)
		return nil
	}

	record, err := parser.ParseStructured(result.Body, s.bounds)
	if err != nil {
		s.logger.Debug("structured payload unusable", "error", err)
		return nil
	}
	if record.Title == "" && record.Price == nil {
		return nil
	}
	if record.URL == "" {
		record.URL = url
	}

	s.logger.Info("extracted product", "strategy", result.Strategy, "title", record.Title, "has_price", record.Price != nil)
	return record
}
