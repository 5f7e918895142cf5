package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/settings"
)

const (
	// SourceVector marks a result assembled from nearest-neighbor matches.
	SourceVector = "vector_search"
	// SourceFallback marks a result assembled from keyword/recency search
	// after the vector path failed.
	SourceFallback = "fallback"

	// Separator joins chunk contents in the assembled context.
	Separator = "\n---\n"

	maxReadRetries = 3
)

type Result struct {
	ContextText string `json:"context"`
	ChunkCount  int    `json:"chunk_count"`
	Source      string `json:"source"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	NearestNeighbors(ctx context.Context, vector []float32, threshold float32, limit int, documentID string) ([]chunkstore.Match, error)
	TextSearch(ctx context.Context, query string, limit int) ([]chunkstore.Match, error)
}

type Options struct {
	TopK       *int
	DocumentID string
}

// Service assembles retrieval context for a query. It degrades instead of
// failing: when embedding or the vector store is unavailable it falls back
// to keyword search, and an empty result is a valid answer.
type Service struct {
	embedder Embedder
	store    VectorStore
	settings *settings.Service
	logger   *QueryLogger
}

func NewService(e Embedder, s VectorStore, set *settings.Service, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, settings: set, logger: l}
}

func (s *Service) Retrieve(ctx context.Context, query string, opts *Options) Result {
	start := time.Now()

	threshold := float32(0.5)
	limit := 5
	if cfg, err := s.settings.Get(ctx); err == nil {
		threshold = cfg.SimilarityThreshold
		limit = cfg.SearchTopK
	}

	documentID := ""
	if opts != nil {
		if opts.TopK != nil && *opts.TopK > 0 {
			limit = *opts.TopK
		}
		documentID = opts.DocumentID
	}

	matches, source := s.search(ctx, query, threshold, limit, documentID)
	result := assemble(matches, source)

	if s.logger != nil {
		s.logger.Log(ctx, QueryLogEntry{
			Query:      query,
			ChunkCount: result.ChunkCount,
			Source:     result.Source,
			Duration:   time.Since(start),
		})
	}
	return result
}

func (s *Service) search(ctx context.Context, query string, threshold float32, limit int, documentID string) ([]chunkstore.Match, string) {
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "query embedding failed, falling back to text search", "error", err)
		return s.textSearch(ctx, query, limit), SourceFallback
	}

	var matches []chunkstore.Match
	err = retryRead(ctx, func() error {
		var nnErr error
		matches, nnErr = s.store.NearestNeighbors(ctx, vec, threshold, limit, documentID)
		return nnErr
	})
	if err != nil {
		slog.WarnContext(ctx, "vector search failed, falling back to text search", "error", err)
		return s.textSearch(ctx, query, limit), SourceFallback
	}
	// No matches above the threshold is a valid answer, not a failure.
	return matches, SourceVector
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	var vec []float32
	err := retryRead(ctx, func() error {
		var embErr error
		vec, embErr = s.embedder.Embed(ctx, query)
		return embErr
	})
	return vec, err
}

func (s *Service) textSearch(ctx context.Context, query string, limit int) []chunkstore.Match {
	matches, err := s.store.TextSearch(ctx, query, limit)
	if err != nil {
		slog.ErrorContext(ctx, "fallback text search failed", "error", err)
		return nil
	}
	return matches
}

// retryRead retries idempotent read operations with exponential backoff.
// Writes never go through here.
func retryRead(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(b, ctx), maxReadRetries))
}

func assemble(matches []chunkstore.Match, source string) Result {
	if len(matches) == 0 {
		return Result{Source: source}
	}
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	return Result{
		ContextText: strings.Join(parts, Separator),
		ChunkCount:  len(matches),
		Source:      source,
	}
}
