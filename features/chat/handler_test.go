package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"nestora/backend/features/chat"
	"nestora/backend/internal/retrieval"
)

type MockRetriever struct{ mock.Mock }

func (m *MockRetriever) Retrieve(ctx context.Context, query string, opts *retrieval.Options) retrieval.Result {
	args := m.Called(ctx, query, opts)
	return args.Get(0).(retrieval.Result)
}

func TestHandler_Context(t *testing.T) {
	rtr := new(MockRetriever)
	rtr.On("Retrieve", mock.Anything, "pool hours", mock.MatchedBy(func(opts *retrieval.Options) bool {
		return opts.TopK != nil && *opts.TopK == 3 && opts.DocumentID == "doc-1"
	})).Return(retrieval.Result{
		ContextText: "Pool opens at 6am.",
		ChunkCount:  1,
		Source:      retrieval.SourceVector,
	})

	h := chat.NewHandler(rtr)

	body := `{"query": "pool hours", "top_k": 3, "document_id": "doc-1"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/context", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.Context(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data retrieval.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Pool opens at 6am.", resp.Data.ContextText)
	assert.Equal(t, 1, resp.Data.ChunkCount)
	assert.Equal(t, retrieval.SourceVector, resp.Data.Source)
}

func TestHandler_Context_EmptyResultIsOK(t *testing.T) {
	rtr := new(MockRetriever)
	rtr.On("Retrieve", mock.Anything, "unknown", mock.Anything).
		Return(retrieval.Result{Source: retrieval.SourceFallback})

	h := chat.NewHandler(rtr)

	req := httptest.NewRequest(http.MethodPost, "/chat/context", strings.NewReader(`{"query": "unknown"}`))
	rec := httptest.NewRecorder()

	h.Context(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chunk_count":0`)
}

func TestHandler_Context_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing query", `{}`},
		{"empty query", `{"query": ""}`},
		{"zero top_k", `{"query": "x", "top_k": 0}`},
		{"negative top_k", `{"query": "x", "top_k": -2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rtr := new(MockRetriever)
			h := chat.NewHandler(rtr)

			req := httptest.NewRequest(http.MethodPost, "/chat/context", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			h.Context(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			rtr.AssertNotCalled(t, "Retrieve")
		})
	}
}
