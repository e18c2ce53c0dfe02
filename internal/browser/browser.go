package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/fetch"
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

const settleDelay = 1500 * time.Millisecond

// Browser renders pages in headless Chromium. It implements fetch.Renderer.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	timeout time.Duration
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

// OptionsFromConfig builds launch options for Indian storefronts.
func OptionsFromConfig(cfg config.BrowserConfig, userAgent string) *Options {
	return &Options{
		Headless:       cfg.Headless,
		Timeout:        cfg.Timeout,
		UserAgent:      userAgent,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		AcceptLanguage: cfg.AcceptLanguage,
		TimezoneID:     cfg.TimezoneID,
		Locale:         cfg.Locale,
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": cfg.AcceptLanguage,
			"DNT":             "1",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		return nil, fmt.Errorf("browser options are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	}
	if opts.UserAgent != "" {
		contextOpts.UserAgent = &opts.UserAgent
	}

	bctx, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		timeout: opts.Timeout,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Render loads url in a fresh page and returns the settled HTML. The page
// is closed when ctx ends, which aborts any pending navigation.
func (b *Browser) Render(ctx context.Context, url, referer string) (*models.FetchResult, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		page.Close()
	}()

	timeout := pageTimeout(ctx, b.timeout, time.Now())
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	gotoOpts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	}
	if referer != "" {
		gotoOpts.Referer = playwright.String(referer)
	}

	resp, err := page.Goto(url, gotoOpts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	if err := b.passInterstitial(page); err != nil {
		b.logger.Debug("interstitial not passed", "url", url, "error", err)
	}

	content, err := page.Content()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	status := 200
	if resp != nil {
		status = resp.Status()
	}

	b.logger.Debug("rendered page", "url", url, "status", status, "bytes", len(content))

	return &models.FetchResult{
		Kind:       models.PayloadHTML,
		Body:       []byte(content),
		StatusCode: status,
		FinalURL:   page.URL(),
		Strategy:   fetch.StrategyBrowser,
	}, nil
}

var interstitialButtons = []string{
	`button:has-text("Continue shopping")`,
	`input[type="submit"][value*="Continue"]`,
	`.a-button-primary`,
	`button.a-button-text`,
}

// passInterstitial clicks through the "continue shopping" gate Amazon shows
// to fresh sessions.
func (b *Browser) passInterstitial(page playwright.Page) error {
	content, err := page.Content()
	if err != nil {
		return fmt.Errorf("failed to get page content: %w", err)
	}
	if !IsInterstitial(content) {
		return nil
	}

	for _, selector := range interstitialButtons {
		button := page.Locator(selector).First()
		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}

		if err := button.Click(); err != nil {
			b.logger.Debug("failed to click interstitial button", "selector", selector, "error", err)
			continue
		}

		page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		})
		time.Sleep(settleDelay)

		after, err := page.Content()
		if err == nil && !IsInterstitial(after) {
			return nil
		}
	}

	return fmt.Errorf("could not find button to pass interstitial")
}

// IsInterstitial reports whether content is the click-through gate rather
// than a product page.
func IsInterstitial(content string) bool {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "id=\"producttitle\"") {
		return false
	}
	return strings.Contains(lower, "click the button below to continue shopping") ||
		(strings.Contains(lower, "continue shopping") && len(content) < 20000)
}

// pageTimeout bounds the browser timeout by ctx's deadline.
func pageTimeout(ctx context.Context, fallback time.Duration, now time.Time) time.Duration {
	timeout := fallback
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := deadline.Sub(now); left < timeout {
			timeout = left
		}
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	return timeout
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
