package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/marketplace-analyzer/internal/botwall"
	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/fetch"
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

const amazonPage = `<html><body>
	<span id="productTitle"> Acme Electric Kettle 1.5L </span>
	<span class="a-price priceToPay"><span class="a-offscreen">₹1,299.00</span></span>
	<img id="landingImage" src="https://m.media-amazon.com/images/I/kettle.jpg">
</body></html>`

const flipkartPage = `<html><head>
	<link rel="canonical" href="https://www.flipkart.com/acme-phone/p/itm123?pid=MOB1">
</head><body>
	<span class="VU-ZEz">Acme Phone (Blue, 128 GB)</span>
	<div class="Nx9bqj">₹18,999</div>
</body></html>`

const blockedPage = `<html><body>Enter the characters you see below. Type the captcha.</body></html>`

func htmlPage(body, strategy string) *models.FetchResult {
	return &models.FetchResult{Kind: models.PayloadHTML, Body: []byte(body), StatusCode: 200, Strategy: strategy}
}

type proxyCall struct {
	target  string
	render  bool
	timeout time.Duration
}

// fakeFetcher records calls and delegates to per-strategy funcs. A nil func
// fails with errUnavailable.
type fakeFetcher struct {
	apiKey     bool
	structured func(ctx context.Context, url string) (*models.FetchResult, error)
	proxy      func(ctx context.Context, target string, render bool) (*models.FetchResult, error)
	direct     func(ctx context.Context, target string) (*models.FetchResult, error)

	mu          sync.Mutex
	proxyCalls  []proxyCall
	directCalls []string
}

var errUnavailable = errors.New("unavailable")

func (f *fakeFetcher) HasAPIKey() bool { return f.apiKey }

func (f *fakeFetcher) Structured(ctx context.Context, url string) (*models.FetchResult, error) {
	if f.structured == nil {
		return nil, fetch.ErrNoAPIKey
	}
	return f.structured(ctx, url)
}

func (f *fakeFetcher) ProxyHTML(ctx context.Context, target string, render bool, timeout time.Duration) (*models.FetchResult, error) {
	f.mu.Lock()
	f.proxyCalls = append(f.proxyCalls, proxyCall{target: target, render: render, timeout: timeout})
	f.mu.Unlock()
	if f.proxy == nil {
		return nil, errUnavailable
	}
	return f.proxy(ctx, target, render)
}

func (f *fakeFetcher) Direct(ctx context.Context, target, referer string, fast bool) (*models.FetchResult, error) {
	f.mu.Lock()
	f.directCalls = append(f.directCalls, target)
	f.mu.Unlock()
	if f.direct == nil {
		return nil, errUnavailable
	}
	return f.direct(ctx, target)
}

func (f *fakeFetcher) calls() ([]proxyCall, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]proxyCall(nil), f.proxyCalls...), append([]string(nil), f.directCalls...)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, raw string, fast bool) string {
	return m.Called(ctx, raw, fast).String(0)
}

func testConfig() config.ScraperConfig {
	return config.ScraperConfig{
		RaceTimeout:           2 * time.Second,
		RaceGrace:             time.Second,
		FlipkartProxyTimeout:  25 * time.Second,
		ShortLinkProxyTimeout: 20 * time.Second,
		PriceMin:              10,
		PriceMax:              10_000_000,
		BlockThreshold:        20000,
	}
}

func TestAmazonPrefersStructuredData(t *testing.T) {
	f := &fakeFetcher{
		apiKey: true,
		structured: func(ctx context.Context, url string) (*models.FetchResult, error) {
			return &models.FetchResult{
				Kind:     models.PayloadJSON,
				Body:     []byte(`{"name":"Acme Kettle","pricing":"₹1,499","images":["https://m.media-amazon.com/k.jpg"]}`),
				Strategy: fetch.StrategyStructured,
			}, nil
		},
	}

	record, err := NewAmazonScraper(f, testConfig(), nil).Scrape(context.Background(), "https://www.amazon.in/dp/B0TEST")
	require.NoError(t, err)

	assert.Equal(t, "Acme Kettle", record.Title)
	require.NotNil(t, record.Price)
	assert.Equal(t, 1499.0, *record.Price)
	assert.Equal(t, "https://www.amazon.in/dp/B0TEST", record.URL)

	proxies, directs := f.calls()
	assert.Empty(t, proxies)
	assert.Empty(t, directs)
}

func TestAmazonFallsBackWhenProxyIsBlocked(t *testing.T) {
	f := &fakeFetcher{
		apiKey: true,
		structured: func(ctx context.Context, url string) (*models.FetchResult, error) {
			return &models.FetchResult{Kind: models.PayloadJSON, Body: []byte(`{"images":["https://m.media-amazon.com/k.jpg"]}`)}, nil
		},
		proxy: func(ctx context.Context, target string, render bool) (*models.FetchResult, error) {
			return htmlPage(blockedPage, fetch.StrategyProxy), nil
		},
		direct: func(ctx context.Context, target string) (*models.FetchResult, error) {
			return htmlPage(amazonPage, fetch.StrategyPlain), nil
		},
	}

	record, err := NewAmazonScraper(f, testConfig(), nil).Scrape(context.Background(), "https://www.amazon.in/dp/B0TEST")
	require.NoError(t, err)

	assert.Equal(t, "Acme Electric Kettle 1.5L", record.Title)
	require.NotNil(t, record.Price)
	assert.Equal(t, 1299.0, *record.Price)
	assert.Equal(t, "https://m.media-amazon.com/images/I/kettle.jpg", record.ImageURL)

	proxies, directs := f.calls()
	require.Len(t, proxies, 1)
	assert.False(t, proxies[0].render)
	assert.Equal(t, []string{"https://www.amazon.in/dp/B0TEST"}, directs)
}

func TestAmazonFailsWhenEveryStrategyIsBlocked(t *testing.T) {
	f := &fakeFetcher{
		direct: func(ctx context.Context, target string) (*models.FetchResult, error) {
			return htmlPage(blockedPage, fetch.StrategyPlain), nil
		},
	}

	record, err := NewAmazonScraper(f, testConfig(), nil).Scrape(context.Background(), "https://www.amazon.in/dp/B0TEST")
	assert.Nil(t, record)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestAmazonNoProductData(t *testing.T) {
	f := &fakeFetcher{
		direct: func(ctx context.Context, target string) (*models.FetchResult, error) {
			return htmlPage(`<html><body><p>nothing to see</p></body></html>`, fetch.StrategyPlain), nil
		},
	}

	_, err := NewAmazonScraper(f, testConfig(), nil).Scrape(context.Background(), "https://www.amazon.in/dp/B0TEST")
	assert.ErrorIs(t, err, ErrNoProductData)
}

func TestFlipkartDirectURLStrategyOrder(t *testing.T) {
	f := &fakeFetcher{
		apiKey: true,
		proxy: func(ctx context.Context, target string, render bool) (*models.FetchResult, error) {
			if render {
				return htmlPage(flipkartPage, fetch.StrategyProxyRender), nil
			}
			return nil, errUnavailable
		},
		direct: func(ctx context.Context, target string) (*models.FetchResult, error) {
			return htmlPage(blockedPage, fetch.StrategyPlain), nil
		},
	}

	record, err := NewFlipkartScraper(f, nil, testConfig(), nil).Scrape(context.Background(), "https://www.flipkart.com/acme-phone/p/itm123?pid=MOB1&affid=x")
	require.NoError(t, err)

	assert.Equal(t, "Acme Phone (Blue, 128 GB)", record.Title)
	assert.Equal(t, "https://www.flipkart.com/acme-phone/p/itm123?pid=MOB1", record.URL)
	require.NotNil(t, record.Price)
	assert.Equal(t, 18999.0, *record.Price)

	proxies, directs := f.calls()
	require.Len(t, proxies, 2)
	assert.Equal(t, proxyCall{target: "https://www.flipkart.com/acme-phone/p/itm123?pid=MOB1&affid=x", render: false, timeout: 25 * time.Second}, proxies[0])
	assert.True(t, proxies[1].render)
	assert.Len(t, directs, 1)
}

func TestFlipkartSkipsRenderFallbackWithoutKey(t *testing.T) {
	f := &fakeFetcher{}

	_, err := NewFlipkartScraper(f, nil, testConfig(), nil).Scrape(context.Background(), "https://www.flipkart.com/acme-phone/p/itm123")
	require.Error(t, err)

	proxies, directs := f.calls()
	assert.Len(t, proxies, 1)
	assert.Len(t, directs, 1)
}

func TestFlipkartShortLinkRaceCancelsLoser(t *testing.T) {
	loserCancelled := make(chan struct{})

	f := &fakeFetcher{
		apiKey: true,
		proxy: func(ctx context.Context, target string, render bool) (*models.FetchResult, error) {
			if render {
				return htmlPage(flipkartPage, fetch.StrategyProxyRender), nil
			}
			<-ctx.Done()
			close(loserCancelled)
			return nil, ctx.Err()
		},
	}

	record, err := NewFlipkartScraper(f, nil, testConfig(), nil).Scrape(context.Background(), "https://dl.flipkart.com/s/AbCd")
	require.NoError(t, err)
	assert.Equal(t, "https://www.flipkart.com/acme-phone/p/itm123?pid=MOB1", record.URL)

	select {
	case <-loserCancelled:
	case <-time.After(time.Second):
		t.Fatal("losing attempt was not cancelled")
	}

	_, directs := f.calls()
	assert.Empty(t, directs)
}

func TestFlipkartShortLinkRetriesOnceViaResolver(t *testing.T) {
	const short = "https://dl.flipkart.com/s/AbCd"
	const resolved = "https://www.flipkart.com/acme-phone/p/itm123?pid=MOB1"

	f := &fakeFetcher{
		apiKey: true,
		proxy: func(ctx context.Context, target string, render bool) (*models.FetchResult, error) {
			if target == resolved && !render {
				return htmlPage(flipkartPage, fetch.StrategyProxy), nil
			}
			return htmlPage(blockedPage, fetch.StrategyProxy), nil
		},
	}

	r := new(mockResolver)
	r.On("Resolve", mock.Anything, short, true).Return(resolved).Once()

	record, err := NewFlipkartScraper(f, r, testConfig(), nil, WithFastResolve(true)).Scrape(context.Background(), short)
	require.NoError(t, err)
	assert.Equal(t, "Acme Phone (Blue, 128 GB)", record.Title)
	r.AssertExpectations(t)

	proxies, directs := f.calls()
	assert.Len(t, directs, 1)
	// race (two attempts) + plain proxy for the short link, then one proxy for the resolved URL
	assert.Len(t, proxies, 4)
}

func TestFlipkartRetryIsBounded(t *testing.T) {
	r := new(mockResolver)
	r.On("Resolve", mock.Anything, "https://dl.flipkart.com/s/AbCd", false).Return("https://fkrt.it/other").Once()

	f := &fakeFetcher{apiKey: true}
	_, err := NewFlipkartScraper(f, r, testConfig(), nil).Scrape(context.Background(), "https://dl.flipkart.com/s/AbCd")

	require.Error(t, err)
	r.AssertNumberOfCalls(t, "Resolve", 1)
}

func TestFlipkartNoRetryWhenResolveIsUnchanged(t *testing.T) {
	r := new(mockResolver)
	r.On("Resolve", mock.Anything, "https://fkrt.it/x", false).Return("https://fkrt.it/x")

	f := &fakeFetcher{}
	_, err := NewFlipkartScraper(f, r, testConfig(), nil).Scrape(context.Background(), "https://fkrt.it/x")

	require.Error(t, err)
	_, directs := f.calls()
	assert.Len(t, directs, 1)
}

func TestRaceAllBlocked(t *testing.T) {
	blocked := func(ctx context.Context) (*models.FetchResult, error) {
		return htmlPage(blockedPage, fetch.StrategyProxy), nil
	}

	_, err := race(context.Background(), testDetector(), blocked, blocked)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestRaceHonoursDeadline(t *testing.T) {
	slow := func(ctx context.Context) (*models.FetchResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := race(ctx, testDetector(), slow, slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(
		NewAmazonScraper(&fakeFetcher{}, testConfig(), nil),
		NewFlipkartScraper(&fakeFetcher{}, nil, testConfig(), nil),
	)

	s, err := registry.For(models.MarketplaceFlipkart)
	require.NoError(t, err)
	assert.Equal(t, models.MarketplaceFlipkart, s.Marketplace())

	_, err = registry.For(models.MarketplaceUnknown)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func testDetector() *botwall.Detector {
	return botwall.NewDetector(botwall.DefaultThreshold)
}
