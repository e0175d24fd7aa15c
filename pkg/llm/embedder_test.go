package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docchat/pkg/llm"
)

func TestNewEmbedderWithConfig(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text:latest", emb.Model())
}

func TestCreateEmbeddingEmpty(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{})
	require.NoError(t, err)

	out, err := emb.CreateEmbedding(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCreateEmbedding(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: server.URL})
	require.NoError(t, err)

	out, err := emb.CreateEmbedding(context.Background(), []string{"first chunk", "second chunk"})
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Len(t, out[0], 3)
	assert.Positive(t, calls)
}
