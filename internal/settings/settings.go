package settings

import (
	"context"
)

// Settings are the runtime-tunable knobs of the retrieval pipeline, stored as
// a single row and editable through the API without a redeploy.
type Settings struct {
	ID                  int     `json:"-"`
	GeminiAPIKey        string  `json:"gemini_api_key"`
	SimilarityThreshold float32 `json:"similarity_threshold"`
	SearchTopK          int     `json:"search_top_k"`
	ChunkTargetSize     int     `json:"chunk_target_size"`
	ChunkOverlap        int     `json:"chunk_overlap"`
}

type Repository interface {
	Get(ctx context.Context) (*Settings, error)
	Update(ctx context.Context, s *Settings) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context) (*Settings, error) {
	return s.repo.Get(ctx)
}

func (s *Service) Update(ctx context.Context, set *Settings) error {
	return s.repo.Update(ctx, set)
}
