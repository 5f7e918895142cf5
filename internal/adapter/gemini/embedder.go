package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"nestora/backend/internal/settings"
)

const (
	// ModelID is the embedding model used for chunks and queries. Its output
	// dimensionality must match the vector column in the chunk store.
	ModelID    = "text-embedding-004"
	Dimensions = 768

	embedTimeout = 30 * time.Second
)

var (
	// ErrNotConfigured means no API key is available; no network call is made.
	ErrNotConfigured = errors.New("gemini api key not configured")

	// ErrUpstream wraps failures of the embedding provider itself.
	ErrUpstream = errors.New("embedding provider error")
)

// Result carries the outcome for one item of a batch. A failed item never
// affects its siblings.
type Result struct {
	Vector []float32
	Err    error
}

// Embedder resolves its API key through the settings service on every call,
// so a key update through the API takes effect without a restart.
type Embedder struct {
	settingsSvc *settings.Service
	client      *genai.Client
	currentKey  string
	mu          sync.RWMutex
	clientOpts  []option.ClientOption
	concurrency int
}

func NewEmbedder(svc *settings.Service, concurrency int, opts ...option.ClientOption) *Embedder {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Embedder{
		settingsSvc: svc,
		clientOpts:  opts,
		concurrency: concurrency,
	}
}

func (e *Embedder) Embed(ctx context.Context, content string) ([]float32, error) {
	client, err := e.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	return e.embedOnce(ctx, client, content)
}

// EmbedBatch embeds each text independently with bounded fan-out. The result
// slice has the same length and order as the input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))
	if len(texts) == 0 {
		return results
	}

	client, err := e.resolveClient(ctx)
	if err != nil {
		for i := range results {
			results[i].Err = err
		}
		return results
	}

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i, content := range texts {
		wg.Add(1)
		go func(i int, content string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := e.embedOnce(ctx, client, content)
			results[i] = Result{Vector: vec, Err: err}
		}(i, content)
	}
	wg.Wait()

	return results
}

func (e *Embedder) embedOnce(ctx context.Context, client *genai.Client, content string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	slog.DebugContext(ctx, "embedding content", "model", ModelID, "length", len(content))

	em := client.EmbeddingModel(ModelID)
	res, err := em.EmbedContent(callCtx, genai.Text(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding received", ErrUpstream)
	}
	if len(res.Embedding.Values) != Dimensions {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrUpstream, Dimensions, len(res.Embedding.Values))
	}
	return res.Embedding.Values, nil
}

// resolveClient fails fast with ErrNotConfigured before any network I/O when
// no key is available.
func (e *Embedder) resolveClient(ctx context.Context) (*genai.Client, error) {
	s, err := e.settingsSvc.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	if s.GeminiAPIKey == "" {
		return nil, ErrNotConfigured
	}
	return e.getClient(ctx, s.GeminiAPIKey)
}

func (e *Embedder) getClient(ctx context.Context, key string) (*genai.Client, error) {
	e.mu.RLock()
	if e.client != nil && e.currentKey == key {
		defer e.mu.RUnlock()
		return e.client, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil && e.currentKey == key {
		return e.client, nil
	}

	if e.client != nil {
		if err := e.client.Close(); err != nil {
			slog.Warn("failed to close previous genai client", "error", err)
		}
	}

	opts := append(e.clientOpts, option.WithAPIKey(key))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	e.client = client
	e.currentKey = key
	return client, nil
}
