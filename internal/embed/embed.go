// Package embed generates embedding vectors for text chunks. Two providers
// are supported: an OpenAI-compatible HTTP API and a local inference
// server. Both satisfy Embedder; callers never branch on the concrete type.
package embed

import (
	"context"
	"errors"
)

// Embedder produces one vector per input text, aligned by position. A
// provider that cannot batch implements EmbedBatch as an internal loop.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Error kinds surfaced by providers. Callers classify with errors.Is.
var (
	// ErrPayloadTooLarge means the request body exceeded a service limit;
	// the caller should bisect the batch and retry the halves.
	ErrPayloadTooLarge = errors.New("embedding payload too large")

	// ErrAuthFailed means the credential was rejected.
	ErrAuthFailed = errors.New("embedding auth failed")

	// ErrRateLimited means the service asked us to slow down.
	ErrRateLimited = errors.New("embedding rate limited")

	// ErrTransport is a network-level failure reaching the service.
	ErrTransport = errors.New("embedding transport error")

	// ErrUnavailable is a server-side failure (5xx).
	ErrUnavailable = errors.New("embedding service unavailable")
)
