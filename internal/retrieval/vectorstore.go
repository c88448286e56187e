package retrieval

import (
	"time"
)

// VectorStore is the interface for chunk storage and similarity search
// backends. The default implementation uses SQLite with brute-force cosine
// similarity, which is plenty for a single article's worth of chunks.
type VectorStore interface {
	// Insert adds chunk records.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteArticle removes all records belonging to the named article.
	// Returns the number of records removed.
	DeleteArticle(article string) (int, error)

	// Count returns the total number of stored records.
	Count() (int, error)
}

// Record is one embedded chunk of an article.
type Record struct {
	ID         string
	Article    string
	ChunkIndex int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
