package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"nestora/backend/internal/adapter/gemini"
	"nestora/backend/internal/settings"
)

type stubSettingsRepo struct {
	settings *settings.Settings
	err      error
}

func (s *stubSettingsRepo) Get(ctx context.Context) (*settings.Settings, error) {
	return s.settings, s.err
}

func (s *stubSettingsRepo) Update(ctx context.Context, set *settings.Settings) error {
	return nil
}

func fakeVector() []float32 {
	vec := make([]float32, gemini.Dimensions)
	for i := range vec {
		vec[i] = float32(i) / gemini.Dimensions
	}
	return vec
}

// newEmbedServer serves embedding responses, failing any request whose body
// contains "FAIL", and counts requests received.
func newEmbedServer(t *testing.T, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "FAIL") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{"values": fakeVector()},
		})
	}))
}

func TestEmbedder_Embed(t *testing.T) {
	var calls int64
	ts := newEmbedServer(t, &calls)
	defer ts.Close()

	svc := settings.NewService(&stubSettingsRepo{settings: &settings.Settings{GeminiAPIKey: "test-key"}})
	embedder := gemini.NewEmbedder(svc, 2, option.WithEndpoint(ts.URL))

	vec, err := embedder.Embed(context.Background(), "two bedroom floor plan")
	require.NoError(t, err)
	assert.Len(t, vec, gemini.Dimensions)
	assert.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestEmbedder_Embed_NoKey(t *testing.T) {
	var calls int64
	ts := newEmbedServer(t, &calls)
	defer ts.Close()

	svc := settings.NewService(&stubSettingsRepo{settings: &settings.Settings{GeminiAPIKey: ""}})
	embedder := gemini.NewEmbedder(svc, 2, option.WithEndpoint(ts.URL))

	_, err := embedder.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, gemini.ErrNotConfigured)
	assert.EqualValues(t, 0, atomic.LoadInt64(&calls), "no network call may be attempted")
}

func TestEmbedder_Embed_SettingsError(t *testing.T) {
	svc := settings.NewService(&stubSettingsRepo{err: errors.New("db fail")})
	embedder := gemini.NewEmbedder(svc, 2)

	_, err := embedder.Embed(context.Background(), "hello")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get settings")
}

func TestEmbedder_EmbedBatch_OrderAndIsolation(t *testing.T) {
	var calls int64
	ts := newEmbedServer(t, &calls)
	defer ts.Close()

	svc := settings.NewService(&stubSettingsRepo{settings: &settings.Settings{GeminiAPIKey: "test-key"}})
	embedder := gemini.NewEmbedder(svc, 2, option.WithEndpoint(ts.URL))

	texts := []string{"pool and gym", "FAIL this one", "pricing tiers", "parking levels"}
	results := embedder.EmbedBatch(context.Background(), texts)

	require.Len(t, results, len(texts))
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, gemini.ErrUpstream)
	assert.Nil(t, results[1].Vector)
	assert.NoError(t, results[2].Err)
	assert.NoError(t, results[3].Err)
	for _, i := range []int{0, 2, 3} {
		assert.Len(t, results[i].Vector, gemini.Dimensions)
	}
	assert.EqualValues(t, 4, atomic.LoadInt64(&calls))
}

func TestEmbedder_EmbedBatch_NoKey(t *testing.T) {
	var calls int64
	ts := newEmbedServer(t, &calls)
	defer ts.Close()

	svc := settings.NewService(&stubSettingsRepo{settings: &settings.Settings{GeminiAPIKey: ""}})
	embedder := gemini.NewEmbedder(svc, 2, option.WithEndpoint(ts.URL))

	results := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, gemini.ErrNotConfigured)
	}
	assert.EqualValues(t, 0, atomic.LoadInt64(&calls))
}

func TestEmbedder_EmbedBatch_Empty(t *testing.T) {
	svc := settings.NewService(&stubSettingsRepo{settings: &settings.Settings{GeminiAPIKey: "k"}})
	embedder := gemini.NewEmbedder(svc, 2)
	assert.Empty(t, embedder.EmbedBatch(context.Background(), nil))
}
