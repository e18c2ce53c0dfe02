package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/marketplace-analyzer/internal/models"
	"github.com/maltedev/marketplace-analyzer/internal/scraper"
)

type stubScraper struct {
	marketplace models.Marketplace
	record      *models.ProductRecord
	err         error

	mu   sync.Mutex
	urls []string
}

func (s *stubScraper) Marketplace() models.Marketplace { return s.marketplace }

func (s *stubScraper) Scrape(ctx context.Context, url string) (*models.ProductRecord, error) {
	s.mu.Lock()
	s.urls = append(s.urls, url)
	s.mu.Unlock()
	return s.record, s.err
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, raw string, fast bool) string {
	return m.Called(ctx, raw, fast).String(0)
}

type memoryCache struct {
	results map[string]*models.AnalysisResult
}

func (c *memoryCache) Get(ctx context.Context, rawURL string) (*models.AnalysisResult, bool) {
	r, ok := c.results[rawURL]
	return r, ok
}

func (c *memoryCache) Set(ctx context.Context, rawURL string, result *models.AnalysisResult) {
	c.results[rawURL] = result
}

type recordingPublisher struct {
	published []*models.AnalysisResult
	err       error
}

func (p *recordingPublisher) PublishAnalysis(ctx context.Context, result *models.AnalysisResult) error {
	p.published = append(p.published, result)
	return p.err
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func kettle() *models.ProductRecord {
	return &models.ProductRecord{
		Platform:     "Amazon",
		Title:        "Acme Electric Kettle",
		Price:        models.Float(1000),
		ImageURL:     "https://m.media-amazon.com/k.jpg",
		URL:          "https://www.amazon.in/dp/B0TEST",
		Availability: models.AvailabilityInStock,
		Specs:        map[string]string{"Capacity": "1.5 L", " Colour ": " Black "},
	}
}

func newTestAnalyzer(amazon, flipkart *stubScraper, r scraper.Resolver, opts ...Option) *Analyzer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(scraper.NewRegistry(amazon, flipkart), r, nil, opts...)
}

func TestAnalyzeDirectAmazonURL(t *testing.T) {
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon, record: kettle()}
	flipkart := &stubScraper{marketplace: models.MarketplaceFlipkart, err: scraper.ErrNoProductData}
	r := new(mockResolver)
	publisher := &recordingPublisher{}

	result := newTestAnalyzer(amazon, flipkart, r, WithPublisher(publisher)).
		Analyze(context.Background(), "  https://www.amazon.in/dp/B0TEST ")

	require.True(t, result.Success)
	assert.Equal(t, "Acme Electric Kettle", result.ProductName)
	assert.Equal(t, models.MarketplaceAmazon, result.SourcePlatform)
	assert.Equal(t, "https://www.amazon.in/dp/B0TEST", result.ResolvedURL)
	assert.Equal(t, []models.Marketplace{models.MarketplaceAmazon}, result.PlatformsFound)
	assert.Equal(t, models.Float(1000), result.Product.CurrentPrice)
	assert.Equal(t, fixedNow, result.AnalyzedAt)

	assert.False(t, result.Comparison.BothFound)
	assert.Nil(t, result.Comparison.PriceDifference)
	assert.Equal(t, models.RecommendationWait, result.Prediction.Recommendation)
	assert.Equal(t, 0.60, result.Prediction.Confidence)

	r.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, flipkart.urls)
	assert.Len(t, publisher.published, 1)
}

func TestAnalyzeResolvesShortLinks(t *testing.T) {
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon, record: kettle()}
	flipkart := &stubScraper{marketplace: models.MarketplaceFlipkart}

	r := new(mockResolver)
	r.On("Resolve", mock.Anything, "https://amzn.in/d/abc", true).Return("https://www.amazon.in/Acme-Kettle/dp/B0TEST").Once()

	result := newTestAnalyzer(amazon, flipkart, r, WithFastResolve(true)).Analyze(context.Background(), "https://amzn.in/d/abc")

	require.True(t, result.Success)
	assert.Equal(t, "https://amzn.in/d/abc", result.SourceURL)
	assert.Equal(t, "https://www.amazon.in/Acme-Kettle/dp/B0TEST", result.ResolvedURL)
	assert.Equal(t, []string{"https://www.amazon.in/Acme-Kettle/dp/B0TEST"}, amazon.urls)
	r.AssertExpectations(t)
}

func TestAnalyzeLeavesFlipkartShortLinksToScraper(t *testing.T) {
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon}
	flipkart := &stubScraper{marketplace: models.MarketplaceFlipkart, record: &models.ProductRecord{
		Platform: "Flipkart", Title: "Acme Phone", Price: models.Float(18999), URL: "https://www.flipkart.com/acme/p/itm1",
	}}
	r := new(mockResolver)

	for _, link := range []string{"https://dl.flipkart.com/s/AbCd", "https://fkrt.it/AbCd"} {
		result := newTestAnalyzer(amazon, flipkart, r).Analyze(context.Background(), link)
		require.True(t, result.Success, link)
		assert.Equal(t, models.MarketplaceFlipkart, result.SourcePlatform)
	}

	r.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"https://dl.flipkart.com/s/AbCd", "https://fkrt.it/AbCd"}, flipkart.urls)
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		resolved string
		amazon   *stubScraper
		expected string
	}{
		{
			name:     "empty url",
			url:      "   ",
			expected: "URL is required",
		},
		{
			name:     "unknown platform",
			url:      "https://example.com/item/42",
			resolved: "https://example.com/item/42",
			expected: "Could not identify platform. Please paste a direct Amazon.in or Flipkart.com product URL.",
		},
		{
			name:     "no data and no name",
			url:      "https://www.amazon.in/gp/product/B0TEST",
			amazon:   &stubScraper{marketplace: models.MarketplaceAmazon, err: scraper.ErrBlocked},
			expected: "Could not extract product details from this URL. (ScraperAPI key: MISSING). Please try a full product URL, not a short link.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amazon := tt.amazon  
			if amazon == nil {
				amazon = &stubScraper{marketplace: models.MarketplaceAmazon}
			}
			r := new(mockResolver)
			if tt.resolved != "" {
				r.On("Resolve", mock.Anything, tt.url, false).Return(tt.resolved)
			}
			publisher := &recordingPublisher{}

			result := newTestAnalyzer(amazon, &stubScraper{marketplace: models.MarketplaceFlipkart}, r, WithPublisher(publisher)).
				Analyze(context.Background(), tt.url)

			assert.False(t, result.Success)
			assert.Equal(t, tt.expected, result.Error)
			assert.Empty(t, publisher.published)
		})
	}
}

func TestAnalyzeDegradesToURLName(t *testing.T) {
	flipkart := &stubScraper{marketplace: models.MarketplaceFlipkart, err: errors.New("timeout")}
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon}

	result := newTestAnalyzer(amazon, flipkart, new(mockResolver)).
		Analyze(context.Background(), "https://www.flipkart.com/acme-phone-5g/p/itm0abc?pid=MOB1")

	require.True(t, result.Success)
	assert.Equal(t, "acme phone 5g", result.ProductName)

	record := result.Record(models.MarketplaceFlipkart)
	require.NotNil(t, record)
	assert.Equal(t, "acme phone 5g", record.Title)
	assert.Nil(t, record.Price)
	assert.Equal(t, models.AvailabilityUnverified, record.Availability)
	assert.Equal(t, models.RecommendationPriceUnavailable, result.Prediction.Recommendation)
	assert.Nil(t, result.Comparison.CheapestPrice)
}

func TestAnalyzeUsesCache(t *testing.T) {
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon, record: kettle()}
	cache := &memoryCache{results: map[string]*models.AnalysisResult{}}
	a := newTestAnalyzer(amazon, &stubScraper{marketplace: models.MarketplaceFlipkart}, new(mockResolver), WithCache(cache))

	first := a.Analyze(context.Background(), "https://www.amazon.in/dp/B0TEST")
	second := a.Analyze(context.Background(), "https://www.amazon.in/dp/B0TEST")

	assert.Same(t, first, second)
	assert.Len(t, amazon.urls, 1)
}

func TestAnalyzePublishErrorDoesNotFail(t *testing.T) {
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon, record: kettle()}
	publisher := &recordingPublisher{err: errors.New("outbox down")}

	result := newTestAnalyzer(amazon, &stubScraper{marketplace: models.MarketplaceFlipkart}, nil, WithPublisher(publisher)).
		Analyze(context.Background(), "https://www.amazon.in/dp/B0TEST")

	assert.True(t, result.Success)
}

func TestAnalysisResultJSON(t *testing.T) {
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon, record: kettle()}
	result := newTestAnalyzer(amazon, &stubScraper{marketplace: models.MarketplaceFlipkart}, nil).
		Analyze(context.Background(), "https://www.amazon.in/dp/B0TEST")

	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, "amazon", decoded["source_platform"])
	assert.Equal(t, map[string]any{"found": false, "message": "Not found on Flipkart"}, decoded["flipkart"])

	amazonEntry, ok := decoded["amazon"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Acme Electric Kettle", amazonEntry["title"])
	assert.Equal(t, 1000.0, amazonEntry["price"])
}

func TestCompareSingle(t *testing.T) {
	amazon := &stubScraper{marketplace: models.MarketplaceAmazon, record: kettle()}

	got, err := newTestAnalyzer(amazon, &stubScraper{marketplace: models.MarketplaceFlipkart}, nil).
		CompareSingle(context.Background(), "https://www.amazon.in/dp/B0TEST")
	require.NoError(t, err)

	assert.Equal(t, &models.NormalizedProduct{
		Name:     "Acme Electric Kettle",
		Price:    models.Float(1000),
		Store:    "AMAZON",
		ImageURL: "https://m.media-amazon.com/k.jpg",
		URL:      "https://www.amazon.in/dp/B0TEST",
		Specs:    map[string]string{"Capacity": "1.5 L", "Colour": "Black"},
	}, got)
}

func TestCompareSingleFailure(t *testing.T) {
	_, err := newTestAnalyzer(
		&stubScraper{marketplace: models.MarketplaceAmazon},
		&stubScraper{marketplace: models.MarketplaceFlipkart},
		nil,
	).CompareSingle(context.Background(), "")

	var analysisErr *AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Equal(t, "URL is required", analysisErr.Reason)
}
