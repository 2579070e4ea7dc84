package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/docharvest/docharvest/internal/logger"
)

// PageContent pairs a page URL with its stored content.
type PageContent struct {
	URL     string
	Content string
}

// PageUpdate pairs a page URL with freshly crawled content.
type PageUpdate struct {
	URL     string
	Content string
}

// InsertURLIfAbsent inserts a page with empty content and zero counters if
// the URL is not already present. Returns true when a row was inserted.
func (s *Store) InsertURLIfAbsent(ctx context.Context, url string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO pages (url) VALUES ($1) ON CONFLICT (url) DO NOTHING`, url)
	if err != nil {
		return false, fmt.Errorf("insert url: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AcquireCrawlBatch claims up to n pages for crawling: least-crawled first,
// oldest crawl first (never-crawled pages lead). Selection runs under FOR
// UPDATE SKIP LOCKED inside a single transaction, so concurrent callers on
// any machine never receive overlapping URLs; under contention the batch is
// simply shorter.
func (s *Store) AcquireCrawlBatch(ctx context.Context, n int) ([]PageContent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin crawl acquisition: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT url, content FROM pages
		ORDER BY crawl_count ASC, last_crawled_at ASC NULLS FIRST
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, n)
	if err != nil {
		return nil, fmt.Errorf("acquire crawl batch: %w", err)
	}

	batch, err := pgx.CollectRows(rows, pgx.RowToStructByPos[PageContent])
	if err != nil {
		return nil, fmt.Errorf("scan crawl batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit crawl acquisition: %w", err)
	}
	return batch, nil
}

// AcquireProcessBatch claims up to n pages for processing: pages with
// non-empty content not yet processed, freshest crawl first. Same
// skip-locked discipline as AcquireCrawlBatch.
func (s *Store) AcquireProcessBatch(ctx context.Context, n int) ([]PageContent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin process acquisition: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT url, content FROM pages
		WHERE content <> '' AND processed_at IS NULL
		ORDER BY last_crawled_at DESC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, n)
	if err != nil {
		return nil, fmt.Errorf("acquire process batch: %w", err)
	}

	batch, err := pgx.CollectRows(rows, pgx.RowToStructByPos[PageContent])
	if err != nil {
		return nil, fmt.Errorf("scan process batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit process acquisition: %w", err)
	}
	return batch, nil
}

// UpdatePagesBatch replaces page content after a successful crawl: sets
// content, bumps crawl_count, stamps last_crawled_at, and clears
// processed_at so the processor picks the fresh content up again. Executed
// as one batched round trip.
func (s *Store) UpdatePagesBatch(ctx context.Context, updates []PageUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`
			UPDATE pages
			SET content = $2,
			    crawl_count = crawl_count + 1,
			    last_crawled_at = NOW(),
			    processed_at = NULL
			WHERE url = $1`, u.URL, u.Content)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range updates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("update pages batch: %w", err)
		}
	}
	return nil
}

// DeletePagesBatch removes the named pages and their chunks in one
// transaction. Returns the number of pages deleted.
func (s *Store) DeletePagesBatch(ctx context.Context, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin page deletion: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE url = ANY($1)`, urls); err != nil {
		return 0, fmt.Errorf("delete chunks for pages: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM pages WHERE url = ANY($1)`, urls)
	if err != nil {
		return 0, fmt.Errorf("delete pages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit page deletion: %w", err)
	}

	logger.Debug("deleted pages", "requested", len(urls), "deleted", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// InsertURLsBatch inserts any URLs not already present and returns the
// number of new rows. Input order is irrelevant; duplicates in the input
// collapse onto the unique url constraint.
func (s *Store) InsertURLsBatch(ctx context.Context, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pages (url)
		SELECT DISTINCT u FROM unnest($1::text[]) AS u
		ON CONFLICT (url) DO NOTHING`, urls)
	if err != nil {
		return 0, fmt.Errorf("insert urls batch: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkProcessed stamps processed_at and bumps process_count for each URL
// in a single statement.
func (s *Store) MarkProcessed(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE pages
		SET processed_at = NOW(),
		    process_count = process_count + 1
		WHERE url = ANY($1)`, urls)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
