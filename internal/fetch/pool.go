package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/docharvest/docharvest/internal/logger"
)

// PoolConfig configures the browser session pool.
type PoolConfig struct {
	Size              int           // number of browser sessions
	UserAgent         string        // defaults to DefaultUserAgent
	PageTimeout       time.Duration // navigation timeout
	DelayBeforeReturn time.Duration // settle time after DOM content loaded
	Retries           int           // retries beyond the first attempt
	NotFoundPhrase    string        // soft-404 marker, defaults to DefaultNotFoundPhrase
}

// BrowserPool maintains a fixed set of headless browser sessions consumed
// through a blocking queue. Sessions are returned to the pool on success
// and on transient failures; a session that fails permanently is evicted
// and lazily recreated on its next use, so the pool never shrinks.
type BrowserPool struct {
	cfg         PoolConfig
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sessions    chan *session
}

// session is one browser tab context. The chromedp context is created on
// first use and recreated after eviction.
type session struct {
	id     int
	pool   *BrowserPool
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBrowserPool creates the allocator and the session slots. Browser
// processes start lazily on first fetch.
func NewBrowserPool(cfg PoolConfig) (*BrowserPool, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("pool size must be positive")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.PageTimeout == 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	if cfg.DelayBeforeReturn == 0 {
		cfg.DelayBeforeReturn = defaultDelay
	}
	if cfg.Retries == 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.NotFoundPhrase == "" {
		cfg.NotFoundPhrase = DefaultNotFoundPhrase
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:], stealthAllocatorOptions(cfg.UserAgent)...)...)

	p := &BrowserPool{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(chan *session, cfg.Size),
	}
	for i := 0; i < cfg.Size; i++ {
		p.sessions <- &session{id: i, pool: p}
	}

	logger.Info("browser pool created",
		"size", cfg.Size,
		"page_timeout", cfg.PageTimeout,
		"delay_before_return", cfg.DelayBeforeReturn)
	return p, nil
}

// Fetch navigates to url in a pooled session and renders the result.
// Transient errors retry on another attempt with the same session returned
// to the pool; permanent session errors evict the session first.
func (p *BrowserPool) Fetch(ctx context.Context, url, selector string) (*Result, error) {
	var lastErr error

	for attempt := 0; attempt <= p.cfg.Retries; attempt++ {
		s, err := p.take(ctx)
		if err != nil {
			return nil, err
		}

		html, err := s.navigate(ctx, url)
		if err != nil {
			if isPermanentSessionErr(err) {
				logger.Warn("browser session failed permanently, evicting",
					"session", s.id,
					"url", url,
					"error", err)
				s.evict()
			} else {
				logger.Debug("transient fetch error",
					"session", s.id,
					"url", url,
					"attempt", attempt+1,
					"error", err)
			}
			p.put(s)
			lastErr = err
			continue
		}
		p.put(s)

		return render(html, url, selector, p.cfg.NotFoundPhrase)
	}

	return nil, fmt.Errorf("fetch %s failed after %d attempts: %w", url, p.cfg.Retries+1, lastErr)
}

// Close cancels every session and the allocator.
func (p *BrowserPool) Close() error {
	for i := 0; i < p.cfg.Size; i++ {
		s := <-p.sessions
		s.evict()
	}
	p.allocCancel()
	logger.Info("browser pool closed")
	return nil
}

func (p *BrowserPool) take(ctx context.Context) (*session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s := <-p.sessions:
		return s, nil
	}
}

func (p *BrowserPool) put(s *session) {
	p.sessions <- s
}

// ensure creates the chromedp context, starts the browser, and installs
// the stealth patches and header set. No-op for a live session.
func (s *session) ensure() error {
	if s.ctx != nil {
		return nil
	}

	ctx, cancel := chromedp.NewContext(s.pool.allocCtx)
	err := chromedp.Run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers(browserHeaders())),
		injectStealthScript(),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("start browser session: %w", err)
	}

	s.ctx = ctx
	s.cancel = cancel
	logger.Debug("browser session started", "session", s.id)
	return nil
}

// evict tears the chromedp context down; the next ensure recreates it.
func (s *session) evict() {
	if s.cancel != nil {
		s.cancel()
	}
	s.ctx = nil
	s.cancel = nil
}

// navigate loads url, waits for DOM content, holds the configured delay,
// and returns the document HTML.
func (s *session) navigate(ctx context.Context, url string) (string, error) {
	if err := s.ensure(); err != nil {
		return "", err
	}

	total := s.pool.cfg.PageTimeout + s.pool.cfg.DelayBeforeReturn + 5*time.Second
	runCtx, cancel := context.WithTimeout(s.ctx, total)
	defer cancel()

	// Propagate caller cancellation into the browser context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(s.pool.cfg.DelayBeforeReturn),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	return html, nil
}

// isPermanentSessionErr reports whether the error means the underlying
// browser session is unusable and must be recreated, as opposed to a
// transient navigation failure worth retrying on the same session.
func isPermanentSessionErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"context canceled",
		"websocket",
		"connection closed",
		"pipe closed",
		"browser closed",
		"could not create target",
		"start browser session",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
