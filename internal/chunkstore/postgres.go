package chunkstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pgvector/pgvector-go"
)

// Postgres stores chunks in the main database using pgvector. Nearest-neighbor
// ranking happens server-side through the cosine distance operator; an ivfflat
// index covers large corpora, while small ones fall back to a sequential scan,
// which is exact and fast enough there.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// ReplaceDocumentChunks atomically supersedes a document's chunks: prior rows
// are deleted and the new batch inserted in one transaction, so a reprocessed
// document never contributes stale context. Chunks without an embedding are
// skipped, not stored. Returns the number of rows inserted.
func (s *Postgres) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []Chunk) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return 0, err
	}

	const insert = `
		INSERT INTO chunks (document_id, document_type, chunk_index, content, char_start, char_end, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	inserted := 0
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			slog.WarnContext(ctx, "skipping chunk without embedding", "document_id", documentID, "chunk_index", ch.ChunkIndex)
			continue
		}
		meta, err := marshalMetadata(ch.Metadata)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, insert,
			documentID, ch.DocumentType, ch.ChunkIndex, ch.Content, ch.CharStart, ch.CharEnd,
			pgvector.NewVector(ch.Embedding), meta)
		if err != nil {
			return 0, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// InsertChunk adds a single ad-hoc chunk outside the batch pipeline and
// returns the new row id.
func (s *Postgres) InsertChunk(ctx context.Context, ch Chunk) (string, error) {
	if len(ch.Embedding) == 0 {
		return "", ErrMissingEmbedding
	}
	meta, err := marshalMetadata(ch.Metadata)
	if err != nil {
		return "", err
	}

	const insert = `
		INSERT INTO chunks (document_id, document_type, chunk_index, content, char_start, char_end, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	var id string
	err = s.db.QueryRowContext(ctx, insert,
		ch.DocumentID, ch.DocumentType, ch.ChunkIndex, ch.Content, ch.CharStart, ch.CharEnd,
		pgvector.NewVector(ch.Embedding), meta).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// NearestNeighbors returns up to limit chunks with cosine similarity strictly
// above threshold, most similar first. An empty documentID searches the whole
// corpus.
func (s *Postgres) NearestNeighbors(ctx context.Context, embedding []float32, threshold float32, limit int, documentID string) ([]Match, error) {
	vec := pgvector.NewVector(embedding)

	query := `
		SELECT id, document_id, content, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY embedding <=> $1
		LIMIT $3`
	args := []interface{}{vec, threshold, limit}

	if documentID != "" {
		query = `
		SELECT id, document_id, content, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE document_id = $4 AND 1 - (embedding <=> $1) > $2
		ORDER BY embedding <=> $1
		LIMIT $3`
		args = append(args, documentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Content, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// TextSearch is the degraded-mode lookup used when vector search is not
// available: a keyword match over chunk content, falling back to the most
// recent chunks when the keyword yields nothing.
func (s *Postgres) TextSearch(ctx context.Context, query string, limit int) ([]Match, error) {
	const keyword = `
		SELECT id, document_id, content
		FROM chunks
		WHERE content ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2`

	matches, err := s.scanMatches(ctx, keyword, query, limit)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches, nil
	}

	const recent = `
		SELECT id, document_id, content
		FROM chunks
		ORDER BY created_at DESC
		LIMIT $1`
	return s.scanMatches(ctx, recent, limit)
}

func (s *Postgres) scanMatches(ctx context.Context, query string, args ...interface{}) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Content); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// GetChunks lists a document's chunks in document order.
func (s *Postgres) GetChunks(ctx context.Context, documentID string, limit, offset int) ([]Chunk, error) {
	const query = `
		SELECT id, document_id, document_type, chunk_index, content, char_start, char_end, metadata, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, documentID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var ch Chunk
		var meta []byte
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.DocumentType, &ch.ChunkIndex, &ch.Content, &ch.CharStart, &ch.CharEnd, &meta, &ch.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				return nil, fmt.Errorf("malformed chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

func (s *Postgres) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

func (s *Postgres) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

func marshalMetadata(meta map[string]interface{}) ([]byte, error) {
	if meta == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(meta)
}
