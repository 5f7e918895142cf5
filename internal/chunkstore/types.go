package chunkstore

import (
	"errors"
	"time"
)

// ErrMissingEmbedding rejects single-row inserts without a vector. Batch
// inserts silently skip such chunks instead; a chunk row is never stored with
// a null or partial vector.
var ErrMissingEmbedding = errors.New("chunk has no embedding")

// Chunk is a stored slice of a document's normalized text together with its
// embedding and provenance.
type Chunk struct {
	ID           string                 `json:"id"`
	DocumentID   string                 `json:"document_id"`
	DocumentType string                 `json:"document_type"`
	ChunkIndex   int                    `json:"chunk_index"`
	Content      string                 `json:"content"`
	CharStart    int                    `json:"char_start"`
	CharEnd      int                    `json:"char_end"`
	Embedding    []float32              `json:"-"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Match is one nearest-neighbor result. Similarity is cosine similarity
// (1 - cosine distance); text-search fallback results carry zero.
type Match struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}
