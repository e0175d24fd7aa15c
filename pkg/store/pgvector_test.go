package store

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docchat/internal/models"
)

// keywordEmbedder gives deterministic vectors: one dimension per keyword,
// the last one biased so no vector is zero.
type keywordEmbedder struct {
	keywords []string
}

func (h keywordEmbedder) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(h.keywords))
		text = strings.ToLower(text)
		for j, k := range h.keywords {
			if strings.Contains(text, k) {
				v[j] = 1
			}
		}
		v[len(v)-1] += 0.01
		out[i] = v
	}
	return out, nil
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "sess_3", chunkID("sess", 3))
}

func TestSanitizeUTF8(t *testing.T) {
	assert.Equal(t, "ok", sanitizeUTF8("ok"))
	assert.Equal(t, "ab", sanitizeUTF8("a\xffb"))
}

func TestNewWithConfigRequiresEmbedder(t *testing.T) {
	_, err := NewWithConfig(context.Background(), VectorStoreConfig{ConnString: "postgres://localhost/none"})
	assert.Error(t, err)
}

func TestVectorStore(t *testing.T) {
	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	embedder := keywordEmbedder{keywords: []string{"invoice", "shipping", "warranty", "_bias"}}
	s, err := NewWithConfig(ctx, VectorStoreConfig{
		ConnString: connString,
		TableName:  "test_document_chunks",
		VectorDim:  len(embedder.keywords),
		BatchSize:  2,
		Embedder:   embedder,
	})
	require.NoError(t, err)
	defer s.Close()

	chunks := []models.Chunk{
		{SessionID: "sess-a", Index: 0, Content: "The invoice total is 42."},
		{SessionID: "sess-a", Index: 1, Content: "Shipping takes five days."},
		{SessionID: "sess-a", Index: 2, Content: "The warranty lasts a year."},
		{SessionID: "sess-b", Index: 0, Content: "Another invoice entirely."},
	}
	require.NoError(t, s.Store(ctx, chunks))

	results, err := s.Retrieve(ctx, "sess-a", "what about shipping", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Shipping takes five days.", results[0].Content)

	results, err = s.Retrieve(ctx, "sess-b", "invoice", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sess-b", results[0].SessionID)
}
