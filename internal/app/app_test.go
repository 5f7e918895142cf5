package app_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"nestora/backend/internal/app"
	"nestora/backend/internal/chunkstore"
	"nestora/backend/internal/config"
)

type MockChunkStore struct{ mock.Mock }

func (m *MockChunkStore) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []chunkstore.Chunk) (int, error) {
	args := m.Called(ctx, documentID, chunks)
	return args.Int(0), args.Error(1)
}

func (m *MockChunkStore) InsertChunk(ctx context.Context, chunk chunkstore.Chunk) (string, error) {
	args := m.Called(ctx, chunk)
	return args.String(0), args.Error(1)
}

func (m *MockChunkStore) NearestNeighbors(ctx context.Context, vector []float32, threshold float32, limit int, documentID string) ([]chunkstore.Match, error) {
	args := m.Called(ctx, vector, threshold, limit, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chunkstore.Match), args.Error(1)
}

func (m *MockChunkStore) TextSearch(ctx context.Context, query string, limit int) ([]chunkstore.Match, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chunkstore.Match), args.Error(1)
}

func (m *MockChunkStore) GetChunks(ctx context.Context, documentID string, limit, offset int) ([]chunkstore.Chunk, error) {
	args := m.Called(ctx, documentID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]chunkstore.Chunk), args.Error(1)
}

func (m *MockChunkStore) DeleteByDocument(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

func (m *MockChunkStore) CountChunks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		VectorBackend:    "pgvector",
		ChunkTargetSize:  900,
		ChunkOverlap:     100,
		EmbedConcurrency: 4,
		ServerPort:       8081,
		QueryLogPath:     filepath.Join(dir, "query.log"),
		MaxUploadSizeMB:  50,
		UploadDir:        dir,
	}
}

func newApp(t *testing.T) (*app.App, sqlmock.Sqlmock, *MockChunkStore) {
	t.Helper()
	db, mockDB, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	chunks := new(MockChunkStore)
	pub := new(MockPublisher)

	a, err := app.New(testConfig(t), db, chunks, pub, slog.Default())
	require.NoError(t, err)
	return a, mockDB, chunks
}

func TestApp_Health(t *testing.T) {
	a, _, _ := newApp(t)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestApp_ListDocumentsRoute(t *testing.T) {
	a, mockDB, _ := newApp(t)

	rows := sqlmock.NewRows([]string{"id", "name", "content_type", "document_type", "status", "created_at", "updated_at"}).
		AddRow("doc-1", "a.pdf", "application/pdf", "brochure", "processed", "t1", "t2")
	mockDB.ExpectQuery("FROM documents").WillReturnRows(rows)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "a.pdf")
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestApp_StatsRoute(t *testing.T) {
	a, mockDB, chunks := newApp(t)

	mockDB.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mockDB.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	chunks.On("CountChunks", mock.Anything).Return(120, nil)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chunks":120`)
}

func TestApp_CORSHeaders(t *testing.T) {
	a, mockDB, _ := newApp(t)

	mockDB.ExpectQuery("FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "content_type", "document_type", "status", "created_at", "updated_at"}))

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/documents", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestApp_ChatContextValidation(t *testing.T) {
	a, _, _ := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/context", nil)
	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
