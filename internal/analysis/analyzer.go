package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/marketplace-analyzer/internal/models"
	"github.com/maltedev/marketplace-analyzer/internal/resolver"
	"github.com/maltedev/marketplace-analyzer/internal/scraper"
)

const (
	msgURLRequired      = "URL is required"
	msgUnknownPlatform  = "Could not identify platform. Please paste a direct Amazon.in or Flipkart.com product URL."
	msgNoProductDetails = "Could not extract product details from this URL. (ScraperAPI key: %s). Please try a full product URL, not a short link."
	defaultProductName  = "Product"
)

// Cache stores finished analyses. Implementations own key normalisation
// and invalidation.
type Cache interface {
	Get(ctx context.Context, rawURL string) (*models.AnalysisResult, bool)
	Set(ctx context.Context, rawURL string, result *models.AnalysisResult)
}

// Publisher is notified of every successful analysis.
type Publisher interface {
	PublishAnalysis(ctx context.Context, result *models.AnalysisResult) error
}

// AnalysisError carries the human-readable reason of a failed analysis.
type AnalysisError struct {
	Reason string
}

func (e *AnalysisError) Error() string {
	return e.Reason
}

type Analyzer struct {
	scrapers    scraper.Registry
	resolver    scraper.Resolver
	predictor   *Predictor
	cache       Cache
	publisher   Publisher
	fastResolve bool
	keyActive   bool
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Analyzer)

func WithCache(c Cache) Option {
	return func(a *Analyzer) {
		a.cache = c
	}
}

func WithPublisher(p Publisher) Option {
	return func(a *Analyzer) {
		a.publisher = p
	}
}

func WithFastResolve(fast bool) Option {
	return func(a *Analyzer) {
		a.fastResolve = fast
	}
}

// WithProxyKey records whether the proxy service key is configured; it only
// changes the wording of the no-data error.
func WithProxyKey(active bool) Option {
	return func(a *Analyzer) {
		a.keyActive = active
	}
}

func WithPredictor(p *Predictor) Option {
	return func(a *Analyzer) {
		a.predictor = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

func New(scrapers scraper.Registry, r scraper.Resolver, logger *slog.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Analyzer{
		scrapers:  scrapers,
		resolver:  r,
		predictor: defaultPredictor,
		now:       time.Now,
		logger:    logger.With("component", "analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze scrapes the marketplace behind rawURL and builds the comparison
// and prediction. It never returns nil; failures set Success to false.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) *models.AnalysisResult {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return failure(msgURLRequired)
	}

	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, url); ok {
			a.logger.Debug("cache hit", "url", url)
			return cached
		}
	}

	a.logger.Info("analyzing", "url", url, "proxy_key", a.keyActive)

	target := a.resolve(ctx, url)
	source := detectMarketplace(target)
	if source == models.MarketplaceUnknown {
		a.logger.Warn("unknown platform", "url", target)
		return failure(msgUnknownPlatform)
	}

	records := make(map[models.Marketplace]*models.ProductRecord)
	var name string

	s, err := a.scrapers.For(source)
	if err != nil {
		return failure(msgUnknownPlatform)
	}
	record, err := s.Scrape(ctx, target)
	if err != nil {
		a.logger.Warn("scrape failed", "platform", source, "url", target, "error", err)
	} else if !record.IsEmpty() {
		records[source] = record
		name = record.Title
	}

	if name == "" {
		name = NameFromURL(target)
		a.logger.Debug("name derived from url", "name", name)
	}

	if len(records) == 0 {
		if name == "" {
			return failure(fmt.Sprintf(msgNoProductDetails, keyStatus(a.keyActive)))
		}
		records[source] = &models.ProductRecord{
			Platform:     source.DisplayName(),
			Title:        name,
			URL:          target,
			Availability: models.AvailabilityUnverified,
			Specs:        map[string]string{},
		}
	}

	src := records[source]
	comparison := Compare(records)

	result := &models.AnalysisResult{
		Success:        true,
		ProductName:    name,
		SourcePlatform: source,
		SourceURL:      rawURL,
		ResolvedURL:    target,
		PlatformsFound: platformsFound(records),
		Product: &models.ProductSummary{
			Name:         name,
			CurrentPrice: src.Price,
			Source:       source,
			URL:          target,
			ImageURL:     src.ImageURL,
		},
		Records:    records,
		Comparison: comparison,
		Prediction: a.predictor.Predict(src.Price, comparison.BothFound),
		AnalyzedAt: a.now().UTC(),
	}

	a.logger.Info("analysis complete", "platform", source, "platforms_found", len(records), "has_price", src.HasPrice())

	if a.cache != nil {
		a.cache.Set(ctx, url, result)
	}
	if a.publisher != nil {
		if err := a.publisher.PublishAnalysis(ctx, result); err != nil {
			a.logger.Error("failed to publish analysis", "error", err)
		}
	}

	return result
}

// CompareSingle returns the source marketplace's record in the normalised
// compare shape.
func (a *Analyzer) CompareSingle(ctx context.Context, rawURL string) (*models.NormalizedProduct, error) {
	url := strings.TrimSpace(rawURL)
	result := a.Analyze(ctx, url)
	if !result.Success {
		return nil, &AnalysisError{Reason: result.Error}
	}

	source := result.SourcePlatform
	record := result.Record(source)
	if record.IsEmpty() {
		record = nil
		for _, m := range models.Marketplaces {
			if r := result.Record(m); !r.IsEmpty() {
				source, record = m, r
				break
			}
		}
	}
	if record == nil {
		return nil, &AnalysisError{Reason: "Could not extract product details from this URL"}
	}

	specs := make(map[string]string, len(record.Specs))
	for k, v := range record.Specs {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			specs[k] = v
		}
	}

	imageURL := record.ImageURL
	if imageURL == "" && result.Product != nil {
		imageURL = result.Product.ImageURL
	}

	return &models.NormalizedProduct{
		Name:     firstNonEmpty(record.Title, result.ProductName, defaultProductName),
		Price:    record.Price,
		Store:    source.StoreTag(),
		ImageURL: strings.TrimSpace(imageURL),
		URL:      firstNonEmpty(record.URL, result.ResolvedURL, result.SourceURL, url),
		Specs:    specs,
	}, nil
}

// resolve expands short and non-marketplace links. Flipkart short links are
// left for the Flipkart scraper, which resolves them only when needed.
func (a *Analyzer) resolve(ctx context.Context, url string) string {
	if resolver.IsFlipkartShortLink(url) || a.resolver == nil {
		return url
	}
	if !resolver.IsShortLink(url) && (strings.Contains(url, "amazon.in") || strings.Contains(url, "flipkart.com")) {
		return url
	}

	resolved := a.resolver.Resolve(ctx, url, a.fastResolve)
	a.logger.Info("resolved url", "from", url, "to", resolved)
	return resolved
}

func detectMarketplace(url string) models.Marketplace {
	low := strings.ToLower(url)
	switch {
	case strings.Contains(low, "amazon.in") || strings.Contains(low, "amazon.com"):
		return models.MarketplaceAmazon
	case strings.Contains(low, "flipkart.com"):
		return models.MarketplaceFlipkart
	default:
		return resolver.Classify(url).Marketplace
	}
}

func platformsFound(records map[models.Marketplace]*models.ProductRecord) []models.Marketplace {
	var found []models.Marketplace
	for _, m := range models.Marketplaces {
		if records[m] != nil {
			found = append(found, m)
		}
	}
	return found
}

func failure(reason string) *models.AnalysisResult {
	return &models.AnalysisResult{Success: false, Error: reason}
}

func keyStatus(active bool) string {
	if active {
		return "active"
	}
	return "MISSING"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
