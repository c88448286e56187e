package reranking

import (
	"context"

	"github.com/kalambet/vaani/internal/retrieval"
)

// ChunkSource is the upstream retriever being reranked.
type ChunkSource interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// Retriever pulls a wider candidate set from its source, reranks it,
// and trims back down to topK. With a NoOpReranker it behaves like the
// source itself.
type Retriever struct {
	source   ChunkSource
	reranker Reranker
	fetchK   int
}

// NewRetriever wraps source with reranking. fetchK is how many
// candidates to retrieve before reranking; values below topK are
// raised to topK at query time.
func NewRetriever(source ChunkSource, reranker Reranker, fetchK int) *Retriever {
	return &Retriever{source: source, reranker: reranker, fetchK: fetchK}
}

// Retrieve returns the topK most relevant chunks for the query.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error) {
	fetchK := r.fetchK
	if fetchK < topK {
		fetchK = topK
	}

	chunks, err := r.source.Retrieve(ctx, query, fetchK)
	if err != nil {
		return nil, err
	}

	reranked, err := r.reranker.Rerank(ctx, query, chunks)
	if err != nil {
		return nil, err
	}
	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}
