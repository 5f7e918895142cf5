package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, gemini_api_key, similarity_threshold, search_top_k, chunk_target_size, chunk_overlap FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.GeminiAPIKey, &s.SimilarityThreshold, &s.SearchTopK, &s.ChunkTargetSize, &s.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET gemini_api_key = $1, similarity_threshold = $2, search_top_k = $3, chunk_target_size = $4, chunk_overlap = $5, updated_at = NOW()
		WHERE id = 1`
	_, err := r.db.ExecContext(ctx, query, s.GeminiAPIKey, s.SimilarityThreshold, s.SearchTopK, s.ChunkTargetSize, s.ChunkOverlap)
	return err
}
