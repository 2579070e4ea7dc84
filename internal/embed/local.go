package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// LocalConfig configures the local inference provider.
type LocalConfig struct {
	BaseURL   string // default http://localhost:11434
	Model     string
	Dimension int
	Timeout   time.Duration
}

// LocalProvider embeds text through a local Ollama-style inference server.
// The server handles one prompt per request, so EmbedBatch is an internal
// loop; it never returns ErrPayloadTooLarge. Vectors are L2-normalized
// before being returned.
type LocalProvider struct {
	cfg    LocalConfig
	client *http.Client
}

// NewLocalProvider creates the provider.
func NewLocalProvider(cfg LocalConfig) (*LocalProvider, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	transport := rehttp.NewTransport(
		nil,
		rehttp.RetryAll(
			rehttp.RetryMaxRetries(2),
			rehttp.RetryAny(
				rehttp.RetryTemporaryErr(),
				rehttp.RetryStatusInterval(500, 600),
			),
		),
		rehttp.ExpJitterDelay(500*time.Millisecond, 5*time.Second),
	)

	return &LocalProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}, nil
}

// Dimension returns the configured vector dimension.
func (p *LocalProvider) Dimension() int {
	return p.cfg.Dimension
}

type localEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type localEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedBatch embeds each text with its own request, preserving input order.
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (p *LocalProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(localEmbedRequest{Model: p.cfg.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, payload)
		}
		return nil, fmt.Errorf("local embedder returned status %d: %s", resp.StatusCode, payload)
	}

	var decoded localEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(decoded.Embedding) != p.cfg.Dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d",
			p.cfg.Dimension, len(decoded.Embedding))
	}

	return normalize(decoded.Embedding), nil
}

// normalize converts to float32 with unit L2 norm, matching the API
// provider's normalized output.
func normalize(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		norm = 1
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
