// Package processor turns crawled pages into embedded chunks. It runs a
// three-stage streamline: a content supplier keeps a buffer of pages
// filled, a single linear stage chunks and embeds one page at a time, and
// a storage manager flushes completed pages in batches. Embedding requests
// adapt to service limits by recursive bisection.
package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/docharvest/docharvest/internal/chunker"
	"github.com/docharvest/docharvest/internal/embed"
	"github.com/docharvest/docharvest/internal/logger"
	"github.com/docharvest/docharvest/internal/store"
)

// Store is the slice of the storage layer the processor needs.
type Store interface {
	AcquireProcessBatch(ctx context.Context, n int) ([]store.PageContent, error)
	ReplaceChunks(ctx context.Context, rows []store.ChunkRow) error
	MarkProcessed(ctx context.Context, urls []string) error
}

// Config holds processor tuning.
type Config struct {
	ContentFetchSize int // supplier batch size
	StorageThreshold int // result buffer flush threshold
	MinChunkLength   int // chunks shorter than this are discarded

	BufferCheckInterval time.Duration
	NoContentSleep      time.Duration

	// MaxBisectDepth caps the recursive halving on payload-too-large.
	MaxBisectDepth int
}

// DefaultConfig returns the processor defaults.
func DefaultConfig() Config {
	return Config{
		ContentFetchSize:    50,
		StorageThreshold:    10,
		MinChunkLength:      128,
		BufferCheckInterval: time.Second,
		NoContentSleep:      3 * time.Second,
		MaxBisectDepth:      10,
	}
}

// pageResult is one processed page waiting for the storage manager.
// failed marks a page whose embedding batch was lost entirely; it is not
// marked processed and comes back on a later pass.
type pageResult struct {
	url        string
	chunks     []string
	embeddings [][]float32 // aligned with chunks; nil entry = failed chunk
	failed     bool
}

// Processor is the streamline pipeline.
type Processor struct {
	store    Store
	chunker  *chunker.Chunker
	embedder embed.Embedder
	cfg      Config

	contentMu sync.Mutex
	content   []store.PageContent

	resultMu sync.Mutex
	results  []pageResult
}

// New creates a Processor. Zero config fields fall back to defaults.
func New(s Store, ch *chunker.Chunker, e embed.Embedder, cfg Config) *Processor {
	def := DefaultConfig()
	if cfg.ContentFetchSize <= 0 {
		cfg.ContentFetchSize = def.ContentFetchSize
	}
	if cfg.StorageThreshold <= 0 {
		cfg.StorageThreshold = def.StorageThreshold
	}
	if cfg.MinChunkLength <= 0 {
		cfg.MinChunkLength = def.MinChunkLength
	}
	if cfg.BufferCheckInterval == 0 {
		cfg.BufferCheckInterval = def.BufferCheckInterval
	}
	if cfg.NoContentSleep == 0 {
		cfg.NoContentSleep = def.NoContentSleep
	}
	if cfg.MaxBisectDepth <= 0 {
		cfg.MaxBisectDepth = def.MaxBisectDepth
	}

	return &Processor{
		store:    s,
		chunker:  ch,
		embedder: e,
		cfg:      cfg,
	}
}

// Run drives the supplier, the linear stage, and the storage manager until
// ctx is cancelled, then flushes whatever results are complete. Unflushed
// pages stay unmarked and are re-derived on the next run.
func (p *Processor) Run(ctx context.Context) error {
	logger.Info("processor starting",
		"fetch_size", p.cfg.ContentFetchSize,
		"storage_threshold", p.cfg.StorageThreshold,
		"min_chunk_length", p.cfg.MinChunkLength,
		"embedding_dim", p.embedder.Dimension())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.supplier(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.linear(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.storageManager(ctx)
	}()

	wg.Wait()
	logger.Info("processor stopped")
	return nil
}

// supplier refills the content buffer whenever it drops below half the
// fetch size.
func (p *Processor) supplier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.contentMu.Lock()
		level := len(p.content)
		p.contentMu.Unlock()

		if level >= p.cfg.ContentFetchSize/2 {
			sleep(ctx, p.cfg.BufferCheckInterval)
			continue
		}

		batch, err := p.store.AcquireProcessBatch(ctx, p.cfg.ContentFetchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("content supplier acquisition failed", "error", err)
			sleep(ctx, p.cfg.NoContentSleep)
			continue
		}
		if len(batch) == 0 {
			sleep(ctx, p.cfg.NoContentSleep)
			continue
		}

		p.contentMu.Lock()
		p.content = append(p.content, batch...)
		level = len(p.content)
		p.contentMu.Unlock()

		logger.Debug("content supplier refilled buffer", "added", len(batch), "level", level)
	}
}

// linear consumes one page at a time; embeddings are strictly serialized
// to match the embedder's model.
func (p *Processor) linear(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.contentMu.Lock()
		var page store.PageContent
		ok := len(p.content) > 0
		if ok {
			page = p.content[0]
			p.content = p.content[1:]
		}
		p.contentMu.Unlock()

		if !ok {
			sleep(ctx, p.cfg.BufferCheckInterval)
			continue
		}

		p.processPage(ctx, page)
	}
}

// processPage segments, embeds, and queues one page for storage.
func (p *Processor) processPage(ctx context.Context, page store.PageContent) {
	start := time.Now()

	var texts []string
	for _, chunk := range p.chunker.Split(page.Content) {
		if len(chunk.Content) < p.cfg.MinChunkLength {
			continue
		}
		texts = append(texts, chunk.Content)
	}

	res := pageResult{url: page.URL, chunks: texts}
	if len(texts) > 0 {
		res.embeddings = p.embedAdaptive(ctx, texts, 0)
		res.failed = allNil(res.embeddings)
	}

	p.resultMu.Lock()
	p.results = append(p.results, res)
	pending := len(p.results)
	p.resultMu.Unlock()

	logger.Debug("processed page",
		"url", page.URL,
		"chunks", len(texts),
		"failed", res.failed,
		"pending", pending,
		"duration", time.Since(start).Round(time.Millisecond))
}

// embedAdaptive embeds texts as one batch, recursively halving on
// payload-too-large. A singleton that still will not fit is recorded as a
// nil vector and skipped. Other errors fail the whole sub-batch.
func (p *Processor) embedAdaptive(ctx context.Context, texts []string, depth int) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	if depth > p.cfg.MaxBisectDepth {
		logger.Error("bisection depth exhausted, skipping chunks", "chunks", len(texts))
		return make([][]float32, len(texts))
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors
	}

	if errors.Is(err, embed.ErrPayloadTooLarge) {
		if len(texts) == 1 {
			logger.Warn("single chunk exceeds embedding payload limit, skipping",
				"bytes", len(texts[0]))
			return make([][]float32, 1)
		}

		mid := len(texts) / 2
		logger.Info("embedding payload too large, bisecting",
			"chunks", len(texts),
			"depth", depth)
		left := p.embedAdaptive(ctx, texts[:mid], depth+1)
		right := p.embedAdaptive(ctx, texts[mid:], depth+1)
		return append(left, right...)
	}

	if ctx.Err() == nil {
		logger.Error("embedding batch failed, skipping", "chunks", len(texts), "error", err)
	}
	return make([][]float32, len(texts))
}

// storageManager flushes the result buffer whenever it reaches the
// threshold, and drains it on shutdown.
func (p *Processor) storageManager(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.BufferCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			p.flush(flushCtx, true)
			cancel()
			return
		case <-ticker.C:
			p.flush(ctx, false)
		}
	}
}

// flush persists buffered results: all chunk rows across pages in one
// replacement call, then the page set marked processed. Pages whose
// embedding batch failed entirely are requeued by leaving them unmarked.
func (p *Processor) flush(ctx context.Context, force bool) {
	p.resultMu.Lock()
	if len(p.results) == 0 || (!force && len(p.results) < p.cfg.StorageThreshold) {
		p.resultMu.Unlock()
		return
	}
	results := p.results
	p.results = nil
	p.resultMu.Unlock()

	var (
		rows    []store.ChunkRow
		done    []string
		skipped int
	)
	for _, res := range results {
		if res.failed {
			continue
		}
		for i, chunk := range res.chunks {
			if res.embeddings[i] == nil {
				skipped++
				continue
			}
			rows = append(rows, store.ChunkRow{
				URL:       res.url,
				Content:   chunk,
				Embedding: res.embeddings[i],
			})
		}
		done = append(done, res.url)
	}

	if len(rows) > 0 {
		if err := p.store.ReplaceChunks(ctx, rows); err != nil {
			logger.Error("chunk flush failed, results requeued for a later pass",
				"pages", len(done),
				"chunks", len(rows),
				"error", err)
			return
		}
	}

	if err := p.store.MarkProcessed(ctx, done); err != nil {
		logger.Error("mark processed failed", "pages", len(done), "error", err)
		return
	}

	logger.Info("stored processed pages",
		"pages", len(done),
		"chunks", len(rows),
		"skipped_chunks", skipped)
}

func allNil(vectors [][]float32) bool {
	for _, vec := range vectors {
		if vec != nil {
			return false
		}
	}
	return true
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
