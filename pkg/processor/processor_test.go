package processor_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docchat/pkg/processor"
)

func TestProcessor_Process(t *testing.T) {
	config := processor.ProcessorConfig{
		ChunkSize:      50,
		ChunkOverlap:   10,
		MinChunkLength: 20,
	}
	p := processor.NewWithConfig(config)

	text := "This is a test document. It contains several sentences to demonstrate text processing. The chunks overlap a little."
	chunks := p.Process("sess-1", text)

	require.Greater(t, len(chunks), 1)
	assert.Contains(t, chunks[0].Content, "test document")
	for i, c := range chunks {
		assert.Equal(t, "sess-1", c.SessionID)
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.Content)
	}
}

func TestProcessor_ShortDocument(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	chunks := p.Process("s", "Tiny.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Tiny.", chunks[0].Content)
}

func TestProcessor_EmptyText(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	assert.Empty(t, p.Process("s", "  \n\n  "))
}

func TestProcessor_KeepsCase(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	chunks := p.Process("s", "Invoice   Number\nACME Corp")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Invoice Number\nACME Corp", chunks[0].Content)
}

func TestProcessor_OverlapIsRuneSafe(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      40,
		ChunkOverlap:   7,
		MinChunkLength: 1,
	})

	text := strings.Repeat("Ünïcödé wörds här. ", 10)
	chunks := p.Process("s", text)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content), c.Content)
	}
}
