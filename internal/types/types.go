package types

import (
	"context"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/ocr"
)

// Core interfaces
type OCRProvider interface {
	ProcessPDF(ctx context.Context, data []byte, filename string) (*ocr.Response, error)
	ProcessURL(ctx context.Context, documentURL string) (*ocr.Response, error)
}

// PDFResolver maps a user-supplied URL to the URL of the PDF it refers to.
type PDFResolver interface {
	ResolvePDF(ctx context.Context, rawURL string) (string, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type Indexer interface {
	Store(ctx context.Context, chunks []models.Chunk) error
}

type Retriever interface {
	Retrieve(ctx context.Context, sessionID, query string, limit int) ([]models.Chunk, error)
}

type Chunker interface {
	Process(sessionID, text string) []models.Chunk
}

type TextExtractor interface {
	PlainText(markdown string) (string, error)
}
