package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/docharvest/docharvest/internal/logger"
)

// ChunkRow is one chunk ready for persistence. Embedding may be nil when
// the configured provider produced none for this chunk.
type ChunkRow struct {
	URL       string
	Content   string
	Embedding []float32
}

// ReplaceChunks atomically replaces the chunk sets for every URL present
// in rows: a bulk delete of the affected URLs followed by a bulk insert,
// inside one transaction. Insert order preserves the order of rows, which
// the processor keeps aligned with document order.
func (s *Store) ReplaceChunks(ctx context.Context, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	urls := distinctURLs(rows)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin chunk replacement: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE url = ANY($1)`, urls); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	copyRows := make([][]any, 0, len(rows))
	for _, row := range rows {
		var embedding any
		if row.Embedding != nil {
			embedding = pgvector.NewVector(row.Embedding)
		}
		copyRows = append(copyRows, []any{uuid.NewString(), row.URL, row.Content, embedding})
	}

	inserted, err := tx.CopyFrom(ctx,
		pgx.Identifier{"chunks"},
		[]string{"id", "url", "content", "embedding"},
		pgx.CopyFromRows(copyRows))
	if err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunk replacement: %w", err)
	}

	logger.Debug("replaced chunks", "urls", len(urls), "chunks", inserted)
	return nil
}

// ChunkCount returns the number of chunks stored for a URL.
func (s *Store) ChunkCount(ctx context.Context, url string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE url = $1`, url).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

func distinctURLs(rows []ChunkRow) []string {
	seen := make(map[string]struct{}, len(rows))
	urls := make([]string, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row.URL]; ok {
			continue
		}
		seen[row.URL] = struct{}{}
		urls = append(urls, row.URL)
	}
	return urls
}
