// Package embed turns article text into fixed-dimension vectors through an
// OpenAI-compatible embeddings endpoint.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pressbrief/pressbrief/internal/model"
)

// Embedder generates one embedding per input text, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// requestTimeout bounds a single embeddings API call. A timed-out batch
// fails the whole curation cycle rather than clustering a partial batch.
const requestTimeout = 60 * time.Second

// Client is an Embedder backed by the OpenAI embeddings API. Results are
// cached in memory by content hash so a retried cycle does not re-embed
// unchanged text, and requests are rate limited.
type Client struct {
	api     *openai.Client
	cfg     model.EmbeddingSettings
	limiter *rate.Limiter
	cache   *gocache.Cache
	log     *zap.SugaredLogger
}

func NewClient(cfg model.EmbeddingSettings, log *zap.SugaredLogger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embeddings API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cache:   gocache.New(cfg.CacheTTL, 10*time.Minute),
		log:     log,
	}, nil
}

// cacheKey hashes the text so long articles do not become map keys.
func cacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return "embed:v1:" + hex.EncodeToString(hash[:])
}

// EmbedTexts returns one embedding per text, in input order. Cached texts
// are served locally; the rest go to the API in batches of the configured
// size. Any batch failure fails the whole call.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if v, ok := c.cache.Get(cacheKey(text)); ok {
			out[i] = v.([]float32)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 128
	}

	for start := 0; start < len(missing); start += batchSize {
		end := start + batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		input := make([]string, len(batch))
		for i, idx := range batch {
			input[i] = texts[idx]
		}

		embeddings, err := c.embedBatch(ctx, input)
		if err != nil {
			return nil, err
		}
		for i, idx := range batch {
			out[idx] = embeddings[i]
			c.cache.Set(cacheKey(texts[idx]), embeddings[i], gocache.DefaultExpiration)
		}
	}

	c.log.Debugw("embedded texts",
		"total", len(texts), "cached", len(texts)-len(missing), "fetched", len(missing))
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, input []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.cfg.Model),
		Input:      input,
		Dimensions: c.cfg.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API: %w", err)
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d texts",
			len(resp.Data), len(input))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embeddings API returned out-of-range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
