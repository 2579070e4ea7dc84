package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/docharvest/docharvest/internal/logger"
)

// StaticConfig configures the plain-HTTP fetcher.
type StaticConfig struct {
	UserAgent      string
	Timeout        time.Duration
	NotFoundPhrase string
}

// StaticFetcher retrieves pages with a plain HTTP client, for sources
// that render without JavaScript. It satisfies the same Fetcher contract
// as the browser pool, including the soft-404 phrase check.
type StaticFetcher struct {
	cfg StaticConfig
}

// NewStaticFetcher creates the fetcher.
func NewStaticFetcher(cfg StaticConfig) *StaticFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.NotFoundPhrase == "" {
		cfg.NotFoundPhrase = DefaultNotFoundPhrase
	}
	return &StaticFetcher{cfg: cfg}
}

// Fetch retrieves url and renders it with the shared pipeline. An HTTP
// 404 is reported through Result.NotFound like the phrase check.
func (f *StaticFetcher) Fetch(ctx context.Context, url, selector string) (*Result, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.cfg.Timeout)

	c.OnRequest(func(r *colly.Request) {
		for key, value := range browserHeaders() {
			r.Headers.Set(key, value.(string))
		}
	})

	var (
		body       string
		statusCode int
		fetchErr   error
	)
	c.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	visitErr := c.Visit(url)
	c.Wait()

	if statusCode == 404 {
		logger.Debug("static fetch got 404", "url", url)
		return &Result{NotFound: true}, nil
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit %s: %w", url, visitErr)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}

	return render(body, url, selector, f.cfg.NotFoundPhrase)
}

// Close is a no-op; the fetcher holds no long-lived resources.
func (f *StaticFetcher) Close() error {
	return nil
}
