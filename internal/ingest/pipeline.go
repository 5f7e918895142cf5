package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nestora/backend/internal/adapter/gemini"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/settings"
	"nestora/backend/internal/text"
)

var (
	// ErrEmptyDocument means extraction produced no usable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")
	// ErrAllChunksFailed means every chunk failed to embed, so nothing was stored.
	ErrAllChunksFailed = errors.New("no chunks could be embedded")
)

type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (string, error)
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) []gemini.Result
}

type Store interface {
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []chunkstore.Chunk) (int, error)
	InsertChunk(ctx context.Context, chunk chunkstore.Chunk) (string, error)
}

type SingleEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Result struct {
	Success       bool
	ChunksCreated int
	TotalChunks   int
}

// Pipeline turns a raw uploaded document into embedded chunks. Markdown and
// plain text are chunked by paragraph, PDFs by sentence since extraction
// flattens their layout.
type Pipeline struct {
	extractor Extractor
	embedder  Embedder
	single    SingleEmbedder
	store     Store
	settings  *settings.Service

	defaultTargetSize int
	defaultOverlap    int
}

func NewPipeline(ex Extractor, em Embedder, single SingleEmbedder, st Store, set *settings.Service, targetSize, overlap int) *Pipeline {
	return &Pipeline{
		extractor:         ex,
		embedder:          em,
		single:            single,
		store:             st,
		settings:          set,
		defaultTargetSize: targetSize,
		defaultOverlap:    overlap,
	}
}

func (p *Pipeline) ProcessDocument(ctx context.Context, raw []byte, documentID, contentType, documentType string) (Result, error) {
	extracted, err := p.extract(ctx, raw, contentType)
	if err != nil {
		return Result{}, err
	}

	normalized := text.Normalize(extracted)
	if normalized == "" {
		return Result{}, ErrEmptyDocument
	}

	targetSize, overlap := p.chunkParams(ctx)
	chunker, err := text.NewChunker(strategyFor(contentType), targetSize, overlap)
	if err != nil {
		return Result{}, fmt.Errorf("chunker config: %w", err)
	}

	spans := chunker.Split(normalized)
	contents := make([]string, len(spans))
	for i, s := range spans {
		contents[i] = s.Content
	}

	embedded := p.embedder.EmbedBatch(ctx, contents)

	chunks := make([]chunkstore.Chunk, 0, len(spans))
	failed := 0
	for i, s := range spans {
		if embedded[i].Err != nil {
			failed++
			slog.WarnContext(ctx, "chunk embedding failed, skipping",
				"document_id", documentID,
				"chunk_index", i,
				"error", embedded[i].Err)
			continue
		}
		chunks = append(chunks, chunkstore.Chunk{
			DocumentID:   documentID,
			DocumentType: documentType,
			ChunkIndex:   i,
			Content:      s.Content,
			CharStart:    s.CharStart,
			CharEnd:      s.CharEnd,
			Embedding:    embedded[i].Vector,
		})
	}

	if len(chunks) == 0 {
		return Result{TotalChunks: len(spans)}, ErrAllChunksFailed
	}

	created, err := p.store.ReplaceDocumentChunks(ctx, documentID, chunks)
	if err != nil {
		return Result{TotalChunks: len(spans)}, fmt.Errorf("storing chunks: %w", err)
	}

	if failed > 0 {
		slog.WarnContext(ctx, "document processed with partial embedding failures",
			"document_id", documentID,
			"failed", failed,
			"total", len(spans))
	}

	return Result{Success: true, ChunksCreated: created, TotalChunks: len(spans)}, nil
}

// AddChunk embeds a single piece of text and appends it to a document outside
// the regular reprocessing flow, e.g. a manual correction.
func (p *Pipeline) AddChunk(ctx context.Context, documentID, documentType, content string, chunkIndex int) (string, error) {
	normalized := text.Normalize(content)
	if normalized == "" {
		return "", ErrEmptyDocument
	}

	vec, err := p.single.Embed(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("embedding chunk: %w", err)
	}

	return p.store.InsertChunk(ctx, chunkstore.Chunk{
		DocumentID:   documentID,
		DocumentType: documentType,
		ChunkIndex:   chunkIndex,
		Content:      normalized,
		Embedding:    vec,
	})
}

func (p *Pipeline) extract(ctx context.Context, raw []byte, contentType string) (string, error) {
	switch contentType {
	case "text/plain", "text/markdown":
		return string(raw), nil
	default:
		return p.extractor.Extract(ctx, raw, contentType)
	}
}

func (p *Pipeline) chunkParams(ctx context.Context) (int, int) {
	if cfg, err := p.settings.Get(ctx); err == nil && cfg.ChunkTargetSize > 0 {
		return cfg.ChunkTargetSize, cfg.ChunkOverlap
	}
	return p.defaultTargetSize, p.defaultOverlap
}

func strategyFor(contentType string) text.Strategy {
	switch contentType {
	case "text/plain", "text/markdown":
		return text.StrategyParagraph
	default:
		return text.StrategySentence
	}
}
