// Package crawler continuously fetches documentation pages within an
// allowed URL prefix, persists their content, and schedules newly
// discovered links. It runs as a fixed worker pool: one URL supplier, N
// workers sharing a bounded queue, and one storage manager draining a
// shared result buffer.
package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/docharvest/docharvest/internal/fetch"
	"github.com/docharvest/docharvest/internal/logger"
	"github.com/docharvest/docharvest/internal/store"
)

// Store is the slice of the storage layer the crawler needs.
type Store interface {
	InsertURLIfAbsent(ctx context.Context, url string) (bool, error)
	AcquireCrawlBatch(ctx context.Context, n int) ([]store.PageContent, error)
	UpdatePagesBatch(ctx context.Context, updates []store.PageUpdate) error
	DeletePagesBatch(ctx context.Context, urls []string) (int64, error)
	InsertURLsBatch(ctx context.Context, urls []string) (int64, error)
}

// Config holds crawler tuning. Workers doubles as the acquisition batch
// size, the queue capacity, and the flush threshold.
type Config struct {
	Workers         int
	DualCrawl       bool
	SeedURL         string
	AllowedPrefix   string
	ContentSelector string

	StorageInterval time.Duration
	NoURLsSleep     time.Duration
	PollInterval    time.Duration
}

// DefaultConfig returns the crawler defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         5,
		AllowedPrefix:   DefaultAllowedPrefix,
		ContentSelector: "#app-main",
		StorageInterval: 30 * time.Second,
		NoURLsSleep:     5 * time.Second,
		PollInterval:    time.Second,
	}
}

// result is one crawled page waiting in the storage buffer.
type result struct {
	url      string
	content  string
	links    []string
	notFound bool
}

// Crawler is the worker pool.
type Crawler struct {
	store   Store
	fetcher fetch.Fetcher
	cfg     Config

	queue chan string

	mu  sync.Mutex
	buf []result
}

// New creates a Crawler. Zero config fields fall back to defaults.
func New(s Store, f fetch.Fetcher, cfg Config) *Crawler {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.AllowedPrefix == "" {
		cfg.AllowedPrefix = def.AllowedPrefix
	}
	if cfg.ContentSelector == "" {
		cfg.ContentSelector = def.ContentSelector
	}
	if cfg.StorageInterval == 0 {
		cfg.StorageInterval = def.StorageInterval
	}
	if cfg.NoURLsSleep == 0 {
		cfg.NoURLsSleep = def.NoURLsSleep
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = def.PollInterval
	}

	return &Crawler{
		store:   s,
		fetcher: f,
		cfg:     cfg,
		queue:   make(chan string, cfg.Workers),
	}
}

// Run seeds the start URL and drives the supplier, the workers, and the
// storage manager until ctx is cancelled. A final flush is attempted on
// shutdown; anything lost is re-selected by the scheduler later.
func (c *Crawler) Run(ctx context.Context) error {
	if c.cfg.SeedURL != "" {
		seed, err := Canonicalize(c.cfg.SeedURL)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(seed, c.cfg.AllowedPrefix) {
			logger.Error("seed URL outside allowed prefix",
				"seed", seed,
				"prefix", c.cfg.AllowedPrefix)
		} else if _, err := c.store.InsertURLIfAbsent(ctx, seed); err != nil {
			return err
		}
	}

	mode := "single"
	if c.cfg.DualCrawl {
		mode = "dual"
	}
	logger.Info("crawler starting",
		"workers", c.cfg.Workers,
		"mode", mode,
		"prefix", c.cfg.AllowedPrefix)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.supplier(ctx)
	}()

	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.storageManager(ctx)
	}()

	wg.Wait()
	logger.Info("crawler stopped")
	return nil
}

// supplier keeps the URL queue topped up from the scheduler. When the
// queue is full the batch tail is dropped; those pages stay unclaimed and
// come back in a later generation.
func (c *Crawler) supplier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if len(c.queue) >= c.cfg.Workers {
			sleep(ctx, c.cfg.PollInterval)
			continue
		}

		batch, err := c.store.AcquireCrawlBatch(ctx, c.cfg.Workers)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("url supplier acquisition failed", "error", err)
			sleep(ctx, c.cfg.NoURLsSleep)
			continue
		}
		if len(batch) == 0 {
			sleep(ctx, c.cfg.NoURLsSleep)
			continue
		}

		queued := 0
		for _, page := range batch {
			select {
			case c.queue <- page.URL:
				queued++
			default:
			}
		}
		logger.Debug("url supplier queued batch", "acquired", len(batch), "queued", queued)
	}
}

// worker drains the queue one URL at a time.
func (c *Crawler) worker(ctx context.Context, id int) {
	logger.Debug("crawler worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("crawler worker stopped", "worker", id)
			return
		case url := <-c.queue:
			start := time.Now()
			if c.crawlOne(ctx, url) {
				logger.Debug("crawled page",
					"worker", id,
					"url", url,
					"duration", time.Since(start).Round(time.Millisecond))
			}
		}
	}
}

// crawlOne fetches a single URL and appends the result to the storage
// buffer. Fetch failures are logged and the URL is skipped; the scheduler
// re-selects it later. Returns whether a result was recorded.
func (c *Crawler) crawlOne(ctx context.Context, url string) bool {
	content, err := c.fetcher.Fetch(ctx, url, c.cfg.ContentSelector)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("fetch failed", "url", url, "error", err)
		}
		return false
	}

	res := result{
		url:      url,
		content:  content.Text,
		notFound: content.NotFound,
	}

	if c.cfg.DualCrawl {
		// Second, selector-less fetch: the full page for reliable link
		// extraction and the 404 phrase test.
		full, err := c.fetcher.Fetch(ctx, url, "")
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("full-page fetch failed", "url", url, "error", err)
			}
			return false
		}
		res.notFound = full.NotFound
		res.links = hrefs(full.Links.Internal)
	} else {
		res.links = hrefs(content.Links.Internal)
	}

	c.mu.Lock()
	c.buf = append(c.buf, res)
	shouldFlush := len(c.buf) >= c.cfg.Workers
	c.mu.Unlock()

	if shouldFlush {
		c.flush(ctx)
	}
	return true
}

// storageManager flushes the buffer on a fixed interval so results never
// sit longer than StorageInterval, and once more on shutdown.
func (c *Crawler) storageManager(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.StorageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			c.flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// flush drains the buffer and persists it: content updates for live pages,
// deletion for 404 pages, and insertion of newly discovered links under
// the allowed prefix. The buffer is copied and cleared inside the lock;
// storage work happens outside it. On storage failure the cycle's data is
// dropped and the affected pages are re-selected in a later generation.
func (c *Crawler) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buf) == 0 {
		c.mu.Unlock()
		return
	}
	data := c.buf
	c.buf = nil
	c.mu.Unlock()

	var (
		updates []store.PageUpdate
		gone    []string
		links   []string
	)
	for _, res := range data {
		if res.notFound {
			gone = append(gone, res.url)
			continue
		}
		updates = append(updates, store.PageUpdate{URL: res.url, Content: res.content})
		links = append(links, res.links...)
	}

	if len(updates) > 0 {
		if err := c.store.UpdatePagesBatch(ctx, updates); err != nil {
			logger.Error("page update flush failed, dropping cycle",
				"pages", len(updates),
				"error", err)
		} else {
			logger.Info("stored crawled pages", "pages", len(updates))
		}
	}

	if len(gone) > 0 {
		deleted, err := c.store.DeletePagesBatch(ctx, gone)
		if err != nil {
			logger.Error("404 deletion failed", "pages", len(gone), "error", err)
		} else {
			logger.Warn("deleted not-found pages", "pages", deleted)
		}
	}

	if allowed := filterAllowed(links, c.cfg.AllowedPrefix); len(allowed) > 0 {
		added, err := c.store.InsertURLsBatch(ctx, allowed)
		if err != nil {
			logger.Error("link insertion failed", "links", len(allowed), "error", err)
		} else if added > 0 {
			logger.Info("discovered new pages", "new", added, "seen", len(allowed))
		}
	}
}

func hrefs(links []fetch.Link) []string {
	out := make([]string, 0, len(links))
	for _, link := range links {
		out = append(out, link.Href)
	}
	return out
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
