package models

// Chunk is a retrievable slice of a document's plain text.
type Chunk struct {
	SessionID string
	Index     int
	Content   string
	Embedding []float32
}
