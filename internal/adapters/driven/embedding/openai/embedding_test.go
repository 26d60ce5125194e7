package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

func newServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			w.WriteHeader(http.StatusOK)
		case "/embeddings":
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			var req embeddingRequest
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			type item struct {
				Embedding []float64 `json:"embedding"`
				Index     int       `json:"index"`
			}
			// Reply in reverse order to exercise index ordering.
			data := make([]item, 0, len(req.Input))
			for i := len(req.Input) - 1; i >= 0; i-- {
				vec := make([]float64, dims)
				vec[0] = float64(i)
				data = append(data, item{Embedding: vec, Index: i})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewEmbeddingService_Defaults(t *testing.T) {
	_, err := NewEmbeddingService(Config{})
	assert.ErrorIs(t, err, domain.ErrMissingInput)

	svc, err := NewEmbeddingService(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, svc.ModelName())
	assert.Equal(t, 1536, svc.Dimensions())
	assert.Equal(t, DefaultInputLimit, svc.InputLimit())

	_, err = NewEmbeddingService(Config{APIKey: "sk-test", Model: "custom-model"})
	assert.ErrorIs(t, err, domain.ErrMissingInput)
}

func TestEmbedBatch_OrdersByIndex(t *testing.T) {
	srv := newServer(t, 4)
	svc, err := NewEmbeddingService(Config{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 4, RequestsPerSecond: 100})
	require.NoError(t, err)

	out, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, v := range out {
		assert.Equal(t, float32(i), v[0])
	}

	one, err := svc.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, one, 4)

	none, err := svc.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEmbedBatch_DimensionMismatch(t *testing.T) {
	srv := newServer(t, 3)
	svc, err := NewEmbeddingService(Config{APIKey: "sk-test", BaseURL: srv.URL, Dimensions: 4})
	require.NoError(t, err)

	_, err = svc.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "expected 4")
}

func TestEmbedBatch_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"input too long","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	svc, err := NewEmbeddingService(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = svc.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "input too long")
}

func TestPing(t *testing.T) {
	srv := newServer(t, 4)
	svc, err := NewEmbeddingService(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}
