package stats_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"nestora/backend/features/stats"
)

type MockCounter struct{ mock.Mock }

func (m *MockCounter) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockChunkCounter struct{ mock.Mock }

func (m *MockChunkCounter) CountChunks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestHandler_GetStats(t *testing.T) {
	docs := new(MockCounter)
	jobs := new(MockCounter)
	chunks := new(MockChunkCounter)

	docs.On("Count", mock.Anything).Return(12, nil)
	jobs.On("Count", mock.Anything).Return(2, nil)
	chunks.On("CountChunks", mock.Anything).Return(340, nil)

	h := stats.NewHandler(docs, jobs, chunks)

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data stats.StatsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.Data.Documents)
	assert.Equal(t, 340, resp.Data.Chunks)
	assert.Equal(t, 2, resp.Data.FailedJobs)
}

func TestHandler_GetStats_CountError(t *testing.T) {
	docs := new(MockCounter)
	jobs := new(MockCounter)
	chunks := new(MockChunkCounter)

	docs.On("Count", mock.Anything).Return(0, errors.New("db down"))

	h := stats.NewHandler(docs, jobs, chunks)

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
