package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/middleware"
	"nestora/backend/internal/retrieval"
	"nestora/backend/internal/settings"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockStore struct{ mock.Mock }

func (m *MockStore) NearestNeighbors(ctx context.Context, vector []float32, threshold float32, limit int, documentID string) ([]chunkstore.Match, error) {
	args := m.Called(ctx, vector, threshold, limit, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chunkstore.Match), args.Error(1)
}

func (m *MockStore) TextSearch(ctx context.Context, query string, limit int) ([]chunkstore.Match, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chunkstore.Match), args.Error(1)
}

type MockSettingsRepo struct{ mock.Mock }

func (m *MockSettingsRepo) Get(ctx context.Context) (*settings.Settings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*settings.Settings), args.Error(1)
}

func (m *MockSettingsRepo) Update(ctx context.Context, s *settings.Settings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func defaultSettings() *settings.Settings {
	return &settings.Settings{SimilarityThreshold: 0.5, SearchTopK: 5}
}

func TestService_Retrieve(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  *retrieval.Options
		setup func(*MockEmbedder, *MockStore, *MockSettingsRepo)
		want  retrieval.Result
	}{
		{
			name:  "vector path joins matches in rank order",
			query: "pool hours",
			setup: func(e *MockEmbedder, s *MockStore, set *MockSettingsRepo) {
				set.On("Get", mock.Anything).Return(defaultSettings(), nil)
				e.On("Embed", mock.Anything, "pool hours").Return([]float32{0.1}, nil)
				s.On("NearestNeighbors", mock.Anything, []float32{0.1}, float32(0.5), 5, "").
					Return([]chunkstore.Match{
						{ChunkID: "c1", Content: "Pool opens at 6am.", Similarity: 0.91},
						{ChunkID: "c2", Content: "Gym is 24/7.", Similarity: 0.72},
					}, nil)
			},
			want: retrieval.Result{
				ContextText: "Pool opens at 6am.\n---\nGym is 24/7.",
				ChunkCount:  2,
				Source:      retrieval.SourceVector,
			},
		},
		{
			name:  "options override top_k and scope to a document",
			query: "parking",
			opts:  &retrieval.Options{TopK: &[]int{2}[0], DocumentID: "doc-7"},
			setup: func(e *MockEmbedder, s *MockStore, set *MockSettingsRepo) {
				set.On("Get", mock.Anything).Return(defaultSettings(), nil)
				e.On("Embed", mock.Anything, "parking").Return([]float32{0.2}, nil)
				s.On("NearestNeighbors", mock.Anything, []float32{0.2}, float32(0.5), 2, "doc-7").
					Return([]chunkstore.Match{{Content: "Deeded parking."}}, nil)
			},
			want: retrieval.Result{ContextText: "Deeded parking.", ChunkCount: 1, Source: retrieval.SourceVector},
		},
		{
			name:  "embedding failure falls back to text search",
			query: "refunds",
			setup: func(e *MockEmbedder, s *MockStore, set *MockSettingsRepo) {
				set.On("Get", mock.Anything).Return(defaultSettings(), nil)
				e.On("Embed", mock.Anything, "refunds").Return(nil, errors.New("embedder down"))
				s.On("TextSearch", mock.Anything, "refunds", 5).
					Return([]chunkstore.Match{{Content: "Refunds within 14 days."}}, nil)
			},
			want: retrieval.Result{ContextText: "Refunds within 14 days.", ChunkCount: 1, Source: retrieval.SourceFallback},
		},
		{
			name:  "nothing above the threshold is a valid empty answer",
			query: "hoa fees",
			setup: func(e *MockEmbedder, s *MockStore, set *MockSettingsRepo) {
				set.On("Get", mock.Anything).Return(defaultSettings(), nil)
				e.On("Embed", mock.Anything, "hoa fees").Return([]float32{0.3}, nil)
				s.On("NearestNeighbors", mock.Anything, []float32{0.3}, float32(0.5), 5, "").
					Return([]chunkstore.Match{}, nil)
			},
			want: retrieval.Result{Source: retrieval.SourceVector},
		},
		{
			name:  "embedding down and no keyword hits still returns a result, never an error",
			query: "unknown topic",
			setup: func(e *MockEmbedder, s *MockStore, set *MockSettingsRepo) {
				set.On("Get", mock.Anything).Return(defaultSettings(), nil)
				e.On("Embed", mock.Anything, "unknown topic").Return(nil, errors.New("embedder down"))
				s.On("TextSearch", mock.Anything, "unknown topic", 5).
					Return([]chunkstore.Match{}, nil)
			},
			want: retrieval.Result{Source: retrieval.SourceFallback},
		},
		{
			name:  "fallback search failure degrades to empty",
			query: "anything",
			setup: func(e *MockEmbedder, s *MockStore, set *MockSettingsRepo) {
				set.On("Get", mock.Anything).Return(defaultSettings(), nil)
				e.On("Embed", mock.Anything, "anything").Return(nil, errors.New("down"))
				s.On("TextSearch", mock.Anything, "anything", 5).
					Return(nil, errors.New("db down"))
			},
			want: retrieval.Result{Source: retrieval.SourceFallback},
		},
		{
			name:  "settings failure uses built-in defaults",
			query: "amenities",
			setup: func(e *MockEmbedder, s *MockStore, set *MockSettingsRepo) {
				set.On("Get", mock.Anything).Return(nil, errors.New("settings error"))
				e.On("Embed", mock.Anything, "amenities").Return([]float32{0.5}, nil)
				s.On("NearestNeighbors", mock.Anything, []float32{0.5}, float32(0.5), 5, "").
					Return([]chunkstore.Match{{Content: "Rooftop lounge."}}, nil)
			},
			want: retrieval.Result{ContextText: "Rooftop lounge.", ChunkCount: 1, Source: retrieval.SourceVector},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(MockEmbedder)
			s := new(MockStore)
			setRepo := new(MockSettingsRepo)
			tt.setup(e, s, setRepo)

			svc := retrieval.NewService(e, s, settings.NewService(setRepo), nil)
			got := svc.Retrieve(context.Background(), tt.query, tt.opts)

			assert.Equal(t, tt.want, got)
			e.AssertExpectations(t)
			s.AssertExpectations(t)
		})
	}
}

// A healthy store that simply has no chunk above the similarity threshold must
// answer with an empty vector_search result. Keyword search would inject
// unrelated context exactly when the index correctly found nothing, so it only
// runs when the vector path itself fails.
func TestService_Retrieve_EmptyVectorResultDoesNotFallBack(t *testing.T) {
	e := new(MockEmbedder)
	s := new(MockStore)
	setRepo := new(MockSettingsRepo)

	setRepo.On("Get", mock.Anything).Return(defaultSettings(), nil)
	e.On("Embed", mock.Anything, "refund policy").Return([]float32{0.1}, nil)
	s.On("NearestNeighbors", mock.Anything, []float32{0.1}, float32(0.5), 5, "").
		Return([]chunkstore.Match{}, nil)

	svc := retrieval.NewService(e, s, settings.NewService(setRepo), nil)
	got := svc.Retrieve(context.Background(), "refund policy", nil)

	assert.Equal(t, retrieval.Result{ContextText: "", ChunkCount: 0, Source: retrieval.SourceVector}, got)
	s.AssertNotCalled(t, "TextSearch", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Retrieve_RetriesTransientStoreErrors(t *testing.T) {
	e := new(MockEmbedder)
	s := new(MockStore)
	setRepo := new(MockSettingsRepo)

	setRepo.On("Get", mock.Anything).Return(defaultSettings(), nil)
	e.On("Embed", mock.Anything, "test").Return([]float32{0.1}, nil)
	s.On("NearestNeighbors", mock.Anything, []float32{0.1}, float32(0.5), 5, "").
		Return(nil, errors.New("connection reset")).Once()
	s.On("NearestNeighbors", mock.Anything, []float32{0.1}, float32(0.5), 5, "").
		Return([]chunkstore.Match{{Content: "A"}}, nil).Once()

	svc := retrieval.NewService(e, s, settings.NewService(setRepo), nil)
	got := svc.Retrieve(context.Background(), "test", nil)

	assert.Equal(t, retrieval.SourceVector, got.Source)
	assert.Equal(t, "A", got.ContextText)
	s.AssertExpectations(t)
}

func TestService_Retrieve_Logging(t *testing.T) {
	e := new(MockEmbedder)
	s := new(MockStore)
	setRepo := new(MockSettingsRepo)

	setRepo.On("Get", mock.Anything).Return(defaultSettings(), nil)
	e.On("Embed", mock.Anything, "test").Return([]float32{0.1}, nil)
	s.On("NearestNeighbors", mock.Anything, []float32{0.1}, float32(0.5), 5, "").
		Return([]chunkstore.Match{{Content: "A"}}, nil)

	var buf bytes.Buffer
	logger := retrieval.NewQueryLogger(&buf)
	svc := retrieval.NewService(e, s, settings.NewService(setRepo), logger)

	ctx := middleware.WithCorrelationID(context.Background(), "corr-123")
	_ = svc.Retrieve(ctx, "test", nil)

	var entry retrieval.QueryLogEntry
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry.Query)
	assert.Equal(t, 1, entry.ChunkCount)
	assert.Equal(t, retrieval.SourceVector, entry.Source)
	assert.Equal(t, "corr-123", entry.CorrelationID)
}
