package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/marketplace-analyzer/internal/botwall"
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported marketplace")
	ErrNoProductData       = errors.New("no product data found")
	ErrBlocked             = errors.New("blocked by anti-bot challenge")
)

// Scraper fetches one marketplace's product page and extracts a record.
type Scraper interface {
	Marketplace() models.Marketplace
	Scrape(ctx context.Context, url string) (*models.ProductRecord, error)
}

// Fetcher is the part of fetch.Client the scrapers use.
type Fetcher interface {
	HasAPIKey() bool
	Structured(ctx context.Context, productURL string) (*models.FetchResult, error)
	ProxyHTML(ctx context.Context, target string, render bool, timeout time.Duration) (*models.FetchResult, error)
	Direct(ctx context.Context, target, referer string, fast bool) (*models.FetchResult, error)
}

// Resolver expands short links.
type Resolver interface {
	Resolve(ctx context.Context, raw string, fast bool) string
}

// Registry maps each marketplace to its scraper.
type Registry map[models.Marketplace]Scraper

func NewRegistry(scrapers ...Scraper) Registry {
	r := make(Registry, len(scrapers))
	for _, s := range scrapers {
		r[s.Marketplace()] = s
	}
	return r
}

func (r Registry) For(m models.Marketplace) (Scraper, error) {
	s, ok := r[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, m)
	}
	return s, nil
}

type fetchFunc func(ctx context.Context) (*models.FetchResult, error)

type strategy struct {
	name  string
	fetch fetchFunc
}

// firstUsable runs strategies in order and returns the first result that is
// not a challenge page. Strategies never run concurrently here.
func firstUsable(ctx context.Context, logger *slog.Logger, detector *botwall.Detector, strategies ...strategy) (*models.FetchResult, error) {
	lastErr := ErrNoProductData

	for _, st := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := st.fetch(ctx)
		if err != nil {
			logger.Debug("strategy failed", "strategy", st.name, "error", err)
			lastErr = err
			continue
		}
		if detector.IsBlocked(result.Text()) {
			logger.Warn("strategy blocked", "strategy", st.name, "bytes", result.Len())
			lastErr = ErrBlocked
			continue
		}

		logger.Debug("strategy succeeded", "strategy", st.name, "bytes", result.Len())
		return result, nil
	}

	return nil, lastErr
}

// race runs fns concurrently and returns the first result that is not a
// challenge page. The remaining attempts are cancelled through ctx.
func race(ctx context.Context, detector *botwall.Detector, fns ...fetchFunc) (*models.FetchResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *models.FetchResult
		err    error
	}
	outcomes := make(chan outcome, len(fns))

	for _, fn := range fns {
		go func() {
			result, err := fn(ctx)
			outcomes <- outcome{result: result, err: err}
		}()
	}

	lastErr := ErrNoProductData
	for range fns {
		select {
		case o := <-outcomes:
			if o.err != nil {
				lastErr = o.err
				continue
			}
			if detector.IsBlocked(o.result.Text()) {
				lastErr = ErrBlocked
				continue
			}
			return o.result, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
