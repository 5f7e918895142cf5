package weaviate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/vector"
)

// Store is the Weaviate-backed chunk store, selectable over Postgres/pgvector
// through VECTOR_BACKEND. Weaviate reports certainty in [0,1]; it is mapped
// back to cosine similarity so both backends honor the same threshold.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []chunkstore.Chunk) (int, error) {
	if err := s.deleteByDocument(ctx, documentID); err != nil {
		return 0, err
	}

	inserted := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			slog.WarnContext(ctx, "skipping chunk without embedding",
				"document_id", documentID,
				"chunk_index", chunk.ChunkIndex)
			continue
		}
		chunk.DocumentID = documentID
		if _, err := s.create(ctx, chunk); err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func (s *Store) InsertChunk(ctx context.Context, chunk chunkstore.Chunk) (string, error) {
	if len(chunk.Embedding) == 0 {
		return "", chunkstore.ErrMissingEmbedding
	}
	return s.create(ctx, chunk)
}

func (s *Store) create(ctx context.Context, chunk chunkstore.Chunk) (string, error) {
	obj, err := s.client.Data().Creator().
		WithClassName(vector.ClassName).
		WithProperties(map[string]interface{}{
			"content":      chunk.Content,
			"documentId":   chunk.DocumentID,
			"documentType": chunk.DocumentType,
			"chunkIndex":   chunk.ChunkIndex,
			"charStart":    chunk.CharStart,
			"charEnd":      chunk.CharEnd,
		}).
		WithVector(chunk.Embedding).
		Do(ctx)
	if err != nil {
		return "", err
	}
	return string(obj.Object.ID), nil
}

func (s *Store) NearestNeighbors(ctx context.Context, vec []float32, threshold float32, limit int, documentID string) ([]chunkstore.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec).
		WithCertainty((threshold + 1) / 2)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "certainty"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...)

	if documentID != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID))
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var matches []chunkstore.Match
	for _, props := range objects(res.Data) {
		match := chunkstore.Match{}
		if content, ok := props["content"].(string); ok {
			match.Content = content
		}
		if docID, ok := props["documentId"].(string); ok {
			match.DocumentID = docID
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				match.ChunkID = id
			}
			if certainty, ok := additional["certainty"].(float64); ok {
				match.Similarity = float32(2*certainty - 1)
			}
		}
		// Certainty cutoffs are inclusive; the threshold is strict.
		if match.Similarity > threshold {
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (s *Store) TextSearch(ctx context.Context, query string, limit int) ([]chunkstore.Match, error) {
	bm25 := s.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties("content")

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithBM25(bm25).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	matches := parseMatches(res.Data)
	if len(matches) > 0 {
		return matches, nil
	}

	// No keyword hits: fall back to whatever is stored so the caller still
	// gets some context.
	res, err = s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}
	return parseMatches(res.Data), nil
}

func (s *Store) GetChunks(ctx context.Context, documentID string, limit, offset int) ([]chunkstore.Chunk, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "documentId"},
		{Name: "documentType"},
		{Name: "chunkIndex"},
		{Name: "charStart"},
		{Name: "charEnd"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	where := filters.Where().
		WithPath([]string{"documentId"}).
		WithOperator(filters.Equal).
		WithValueString(documentID)

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithWhere(where).
		WithSort(graphql.Sort{Path: []string{"chunkIndex"}, Order: graphql.Asc}).
		WithLimit(limit).
		WithOffset(offset).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var chunks []chunkstore.Chunk
	for _, props := range objects(res.Data) {
		chunk := chunkstore.Chunk{}
		if content, ok := props["content"].(string); ok {
			chunk.Content = content
		}
		if docID, ok := props["documentId"].(string); ok {
			chunk.DocumentID = docID
		}
		if docType, ok := props["documentType"].(string); ok {
			chunk.DocumentType = docType
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			chunk.ChunkIndex = int(idx)
		}
		if start, ok := props["charStart"].(float64); ok {
			chunk.CharStart = int(start)
		}
		if end, ok := props["charEnd"].(float64); ok {
			chunk.CharEnd = int(end)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				chunk.ID = id
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	return s.deleteByDocument(ctx, documentID)
}

func (s *Store) deleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := agg[vector.ClassName].([]interface{}); ok && len(classes) > 0 {
			if entry, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := entry["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

func parseMatches(data map[string]models.JSONObject) []chunkstore.Match {
	var matches []chunkstore.Match
	for _, props := range objects(data) {
		match := chunkstore.Match{}
		if content, ok := props["content"].(string); ok {
			match.Content = content
		}
		if docID, ok := props["documentId"].(string); ok {
			match.DocumentID = docID
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				match.ChunkID = id
			}
		}
		matches = append(matches, match)
	}
	return matches
}

func objects(data map[string]models.JSONObject) []map[string]interface{} {
	var out []map[string]interface{}
	if get, ok := data["Get"].(map[string]interface{}); ok {
		if raw, ok := get[vector.ClassName].([]interface{}); ok {
			for _, c := range raw {
				if props, ok := c.(map[string]interface{}); ok {
					out = append(out, props)
				}
			}
		}
	}
	return out
}
