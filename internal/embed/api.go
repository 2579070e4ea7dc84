package embed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/docharvest/docharvest/internal/logger"
)

// APIConfig configures the OpenAI-compatible embedding provider.
type APIConfig struct {
	BaseURL   string
	Model     string
	Dimension int

	// APIKey is a static credential. When KeysFile is set it takes
	// precedence and rejected keys are rotated out of the file.
	APIKey   string
	KeysFile string

	Timeout    time.Duration
	MaxRetries int
}

// APIProvider embeds batches of texts through a remote embeddings
// endpoint. One request carries the whole batch; the caller handles
// payload-too-large by bisection.
type APIProvider struct {
	cfg  APIConfig
	keys *KeyFile

	mu        sync.Mutex
	client    openai.Client
	clientKey string
	hasClient bool
}

// NewAPIProvider creates the provider. With a keys file configured the
// first key must be readable; with a static key it must be non-empty.
func NewAPIProvider(cfg APIConfig) (*APIProvider, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	p := &APIProvider{cfg: cfg}
	if cfg.KeysFile != "" {
		p.keys = NewKeyFile(cfg.KeysFile)
		if _, err := p.keys.Current(); err != nil {
			return nil, err
		}
	} else if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding API key required")
	}
	return p, nil
}

// Dimension returns the configured vector dimension.
func (p *APIProvider) Dimension() int {
	return p.cfg.Dimension
}

// currentKey returns the active credential.
func (p *APIProvider) currentKey() (string, error) {
	if p.keys != nil {
		return p.keys.Current()
	}
	return p.cfg.APIKey, nil
}

// clientFor returns a client bound to key, rebuilding only when the key
// changed since the last call.
func (p *APIProvider) clientFor(key string) openai.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasClient && p.clientKey == key {
		return p.client
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithRequestTimeout(p.cfg.Timeout),
		option.WithMaxRetries(0), // retry policy lives here, not in the SDK
	}
	if p.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.cfg.BaseURL))
	}

	p.client = openai.NewClient(opts...)
	p.clientKey = key
	p.hasClient = true
	return p.client
}

// EmbedBatch embeds texts in a single request. Transient failures are
// retried with backoff up to MaxRetries; a rejected credential is rotated
// when a keys file is configured; payload-too-large is returned to the
// caller for bisection.
func (p *APIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		key, err := p.currentKey()
		if err != nil {
			return nil, err
		}

		vectors, err := p.embedOnce(ctx, p.clientFor(key), texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, ErrPayloadTooLarge):
			return nil, err

		case errors.Is(err, ErrAuthFailed):
			if p.keys == nil {
				return nil, err
			}
			removed, rotateErr := p.keys.Invalidate(key)
			if rotateErr != nil {
				return nil, rotateErr
			}
			logger.Warn("embedding credential rejected, rotating",
				"removed", removed,
				"remaining", p.keys.Count())
			// Next loop iteration picks up the next key.

		case errors.Is(err, ErrRateLimited), errors.Is(err, ErrTransport), errors.Is(err, ErrUnavailable):
			if attempt == p.cfg.MaxRetries {
				return nil, err
			}
			logger.Debug("embedding request failed, backing off",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2

		default:
			return nil, err
		}
	}

	return nil, lastErr
}

func (p *APIProvider) embedOnce(ctx context.Context, client openai.Client, texts []string) ([][]float32, error) {
	resp, err := client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.cfg.Model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
			len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		if len(vec) != p.cfg.Dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d",
				p.cfg.Dimension, len(vec))
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// classify maps an SDK error onto the package error kinds.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if mapped := classifyStatus(apiErr.StatusCode); mapped != nil {
			return fmt.Errorf("%w: %v", mapped, err)
		}
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// classifyStatus maps an HTTP status onto an error kind, or nil when the
// status carries no special handling.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthFailed
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrUnavailable
	}
	return nil
}
