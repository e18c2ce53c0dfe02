package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

var (
	ErrNoAPIKey      = errors.New("scraper api key not configured")
	ErrNotStructured = errors.New("structured data is only available for amazon")
	ErrStatus        = errors.New("unexpected status code")
	ErrTooSmall      = errors.New("response body too small")
)

const (
	maxBodyBytes = 16 << 20
	maxRedirects = 10

	StrategyStructured  = "structured"
	StrategyProxy       = "proxy"
	StrategyProxyRender = "proxy-render"
	StrategySession     = "session"
	StrategyBrowser     = "browser"
	StrategyPlain       = "plain"
)

// Renderer loads a page in a real browser.
type Renderer interface {
	Render(ctx context.Context, url, referer string) (*models.FetchResult, error)
}

// Response is a raw GET outcome, whatever its status.
type Response struct {
	StatusCode int
	FinalURL   string
	Header     http.Header
	Body       []byte
}

func (r *Response) Text() string {
	return string(r.Body)
}

// Client implements the structured, proxy and direct retrieval strategies.
// Strategies never retry beyond their own attempt list.
type Client struct {
	cfg       config.ScraperConfig
	transport http.RoundTripper
	renderer  Renderer
	agents    UserAgentPool
	logger    *slog.Logger
}

type Option func(*Client)

// WithRenderer makes a browser the first direct attempt.
func WithRenderer(r Renderer) Option {
	return func(c *Client) {
		c.renderer = r
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(cfg config.ScraperConfig, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		transport: http.DefaultTransport,
		agents:    UserAgentPool(cfg.UserAgents),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "fetch")
	return c
}

func (c *Client) HasAPIKey() bool {
	return c.cfg.APIKey != ""
}

// Get issues one GET with its own cookie session. Redirects to non-HTTP
// schemes are not followed so their Location header stays visible.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header, timeout time.Duration) (*Response, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return c.get(ctx, c.httpClient(jar), rawURL, headers, timeout)
}

func (c *Client) httpClient(jar http.CookieJar) *http.Client {
	return &http.Client{
		Transport:     c.transport,
		Jar:           jar,
		CheckRedirect: checkRedirect,
	}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return http.ErrUseLastResponse
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return http.ErrUseLastResponse
	}
	return nil
}

func (c *Client) get(ctx context.Context, client *http.Client, rawURL string, headers http.Header, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if headers != nil {
		req.Header = headers.Clone()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), raw)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Structured asks the structured-data service for a pre-parsed Amazon product.
func (c *Client) Structured(ctx context.Context, productURL string) (*models.FetchResult, error) {
	if !c.HasAPIKey() {
		return nil, ErrNoAPIKey
	}
	if models.MarketplaceForHost(models.HostOf(productURL)) != models.MarketplaceAmazon {
		return nil, ErrNotStructured
	}

	params := url.Values{}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("url", productURL)
	params.Set("country_code", c.cfg.CountryCode)

	headers := make(http.Header)
	headers.Set("Accept", "application/json")

	c.logger.Debug("structured fetch", "url", productURL)
	resp, err := c.get(ctx, c.httpClient(nil), c.cfg.StructuredURL+"?"+params.Encode(), headers, c.cfg.StructuredTimeout)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("structured fetch rejected", "status", resp.StatusCode, "preview", preview(resp.Body, 200))
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("structured response for %s is not valid JSON", productURL)
	}

	return &models.FetchResult{
		Kind:       models.PayloadJSON,
		Body:       resp.Body,
		StatusCode: resp.StatusCode,
		FinalURL:   productURL,
		Strategy:   StrategyStructured,
	}, nil
}

// ProxyHTML fetches target through the proxy service, optionally rendering
// JavaScript. A zero timeout uses the configured proxy timeout.
func (c *Client) ProxyHTML(ctx context.Context, target string, render bool, timeout time.Duration) (*models.FetchResult, error) {
	if !c.HasAPIKey() {
		return nil, ErrNoAPIKey
	}
	if timeout <= 0 {
		timeout = c.cfg.ProxyTimeout
	}

	params := url.Values{}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("url", target)
	params.Set("country_code", c.cfg.CountryCode)
	params.Set("render", strconv.FormatBool(render))
	params.Set("device_type", "desktop")
	params.Set("keep_headers", "true")

	strategy := StrategyProxy
	if render {
		strategy = StrategyProxyRender
	}

	resp, err := c.get(ctx, c.httpClient(nil), c.cfg.APIBaseURL+"?"+params.Encode(),
		BrowserHeaders(c.agents.Random(), ""), timeout)
	if err != nil {
		c.logger.Debug("proxy fetch failed", "url", target, "render", render, "error", err)
		return nil, err
	}

	c.logger.Debug("proxy fetch", "url", target, "render", render, "status", resp.StatusCode, "bytes", len(resp.Body))
	if err := c.accept(resp, c.cfg.MinProxyBytes); err != nil {
		return nil, err
	}

	return &models.FetchResult{
		Kind:       models.PayloadHTML,
		Body:       resp.Body,
		StatusCode: resp.StatusCode,
		FinalURL:   target,
		Strategy:   strategy,
	}, nil
}

// Direct fetches target without the proxy: a browser (or a cookie session
// that replays challenge cookies) first, then plain requests over the
// user-agent pool. fast shortens timeouts and uses a single user agent.
func (c *Client) Direct(ctx context.Context, target, referer string, fast bool) (*models.FetchResult, error) {
	sessionTimeout, plainTimeout, agents := c.cfg.SessionTimeout, c.cfg.DirectTimeout, c.agents
	if fast {
		sessionTimeout, plainTimeout, agents = c.cfg.SessionFastTimeout, c.cfg.DirectFastTimeout, c.agents.Take(1)
	}

	var lastErr error

	result, err := c.resistant(ctx, target, referer, sessionTimeout)
	if err == nil {
		return result, nil
	}
	c.logger.Debug("resistant fetch failed", "url", target, "error", err)
	lastErr = err

	client := c.httpClient(nil)
	for _, ua := range agents {
		resp, err := c.get(ctx, client, target, BrowserHeaders(ua, referer), plainTimeout)
		if err == nil {
			err = c.accept(resp, c.cfg.MinDirectBytes)
		}
		if err != nil {
			lastErr = err
			continue
		}

		c.logger.Debug("plain fetch ok", "url", target, "bytes", len(resp.Body))
		return htmlResult(resp, StrategyPlain), nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, lastErr
}

func (c *Client) resistant(ctx context.Context, target, referer string, timeout time.Duration) (*models.FetchResult, error) {
	if c.renderer != nil {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := c.renderer.Render(rctx, target, referer)
		if err != nil {
			return nil, err
		}
		if result.Len() <= c.cfg.MinDirectBytes {
			return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, result.Len())
		}
		return result, nil
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := c.httpClient(jar)
	headers := BrowserHeaders(c.agents.Random(), referer)

	resp, err := c.get(ctx, client, target, headers, timeout)
	if err != nil {
		return nil, err
	}
	if err := c.accept(resp, c.cfg.MinDirectBytes); err == nil {
		return htmlResult(resp, StrategySession), nil
	}

	// Challenge pages often set a clearance cookie and expect a reload.
	u, perr := url.Parse(resp.FinalURL)
	if perr != nil || len(jar.Cookies(u)) == 0 {
		return nil, c.accept(resp, c.cfg.MinDirectBytes)
	}
	resp, err = c.get(ctx, client, target, headers, timeout)
	if err != nil {
		return nil, err
	}
	if err := c.accept(resp, c.cfg.MinDirectBytes); err != nil {
		return nil, err
	}
	return htmlResult(resp, StrategySession), nil
}

// accept requires a 200 status and a body strictly larger than minBytes.
func (c *Client) accept(resp *Response, minBytes int) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	if len(resp.Body) <= minBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooSmall, len(resp.Body))
	}
	return nil
}

func htmlResult(resp *Response, strategy string) *models.FetchResult {
	return &models.FetchResult{
		Kind:       models.PayloadHTML,
		Body:       resp.Body,
		StatusCode: resp.StatusCode,
		FinalURL:   resp.FinalURL,
		Strategy:   strategy,
	}
}

func preview(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return string(body)
}
