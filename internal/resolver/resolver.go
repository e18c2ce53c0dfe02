package resolver

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/marketplace-analyzer/internal/config"
	"github.com/maltedev/marketplace-analyzer/internal/fetch"
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

// Fetcher is the part of fetch.Client the resolver needs.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, headers http.Header, timeout time.Duration) (*fetch.Response, error)
	ProxyHTML(ctx context.Context, target string, render bool, timeout time.Duration) (*models.FetchResult, error)
}

// Resolver turns short or wrapped links into direct marketplace product URLs.
type Resolver struct {
	fetcher Fetcher
	cfg     config.ScraperConfig
	agents  fetch.UserAgentPool
	logger  *slog.Logger
}

func New(fetcher Fetcher, cfg config.ScraperConfig, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		fetcher: fetcher,
		cfg:     cfg,
		agents:  fetch.UserAgentPool(cfg.UserAgents),
		logger:  logger.With("component", "resolver"),
	}
}

// Resolve returns the direct product URL behind raw, or raw itself when
// every step fails. fast trims the header profiles and shortens timeouts.
func (r *Resolver) Resolve(ctx context.Context, raw string, fast bool) string {
	raw = strings.TrimSpace(raw)
	r.logger.Debug("resolving", "url", raw, "fast", fast)

	if target := RedirectTarget(raw); target != "" {
		r.logger.Debug("resolved from query", "target", target)
		return target
	}

	if target := r.followRedirects(ctx, raw, fast); target != "" {
		return target
	}

	if ctx.Err() != nil {
		return raw
	}

	if target := r.viaProxy(ctx, raw, fast); target != "" {
		return target
	}

	r.logger.Info("resolve failed, using original", "url", raw)
	return raw
}

func (r *Resolver) profiles(fast bool) []http.Header {
	browser := fetch.BrowserHeaders(r.agents.Random(), fetch.DefaultReferer)
	profiles := []http.Header{
		browser,
		fetch.AppHeaders(fetch.BrowserHeaders(r.agents.Random(), fetch.DefaultReferer)),
		fetch.MinimalHeaders(),
	}
	if fast {
		return profiles[:2]
	}
	return profiles
}

// followRedirects tries each header profile: final URL, then Location
// header, then product URLs embedded in the body.
func (r *Resolver) followRedirects(ctx context.Context, raw string, fast bool) string {
	timeout := r.cfg.ResolveTimeout
	if fast {
		timeout = r.cfg.ResolveFastTimeout
	}

	for i, headers := range r.profiles(fast) {
		if ctx.Err() != nil {
			return ""
		}

		resp, err := r.fetcher.Get(ctx, raw, headers, timeout)
		if err != nil {
			r.logger.Debug("resolve attempt failed", "profile", i, "error", err)
			continue
		}

		final := resp.FinalURL
		if final != raw && (strings.Contains(final, "amazon.in") || strings.Contains(final, "flipkart.com")) {
			r.logger.Debug("resolved by redirect", "target", final)
			return final
		}

		if loc := resp.Header.Get("Location"); loc != "" {
			if candidate := joinURL(raw, loc); mentionsMarketplace(candidate) {
				r.logger.Debug("resolved from location header", "target", candidate)
				return candidate
			}
		}

		if candidate := ProductURLFromText(resp.Text()); candidate != "" {
			r.logger.Debug("resolved from body", "target", candidate)
			return candidate
		}
	}
	return ""
}

func (r *Resolver) viaProxy(ctx context.Context, raw string, fast bool) string {
	flipkartShort := strings.Contains(models.HostOf(raw), "dl.flipkart.com")

	timeout := r.cfg.ResolveProxyTimeout
	switch {
	case flipkartShort && fast:
		timeout = r.cfg.ResolveProxyFastTimeout
	case flipkartShort:
		timeout = r.cfg.ResolveProxyFlipkartTimeout
	}

	result, err := r.fetcher.ProxyHTML(ctx, raw, flipkartShort, timeout)
	if err != nil {
		r.logger.Debug("resolve via proxy failed", "error", err)
		return ""
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body)); err == nil {
		if c, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok && metaMentionsMarketplace(c) {
			return c
		}
		if c, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && metaMentionsMarketplace(c) {
			return c
		}
	}

	return ProductURLFromText(result.Text())
}

func metaMentionsMarketplace(s string) bool {
	return strings.Contains(s, "amazon.in") || strings.Contains(s, "flipkart.com")
}

func joinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	u, err := b.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
