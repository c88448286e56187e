package reranking

import (
	"context"
	"errors"
	"testing"

	"github.com/kalambet/vaani/internal/retrieval"
)

type stubSource struct {
	chunks   []retrieval.ContextChunk
	err      error
	gotTopK  int
	gotQuery string
}

func (s *stubSource) Retrieve(_ context.Context, query string, topK int) ([]retrieval.ContextChunk, error) {
	s.gotQuery = query
	s.gotTopK = topK
	return s.chunks, s.err
}

func TestRerankingRetriever_TrimsToTopK(t *testing.T) {
	source := &stubSource{chunks: makeChunks(6, 0.5)}
	r := NewRetriever(source, &NoOpReranker{}, 6)

	chunks, err := r.Retrieve(context.Background(), "salt march", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	if source.gotTopK != 6 {
		t.Errorf("source queried with topK=%d, want 6", source.gotTopK)
	}
	if len(chunks) != 2 {
		t.Errorf("got %d chunks, want 2", len(chunks))
	}
}

func TestRerankingRetriever_RaisesFetchK(t *testing.T) {
	source := &stubSource{}
	r := NewRetriever(source, &NoOpReranker{}, 1)

	if _, err := r.Retrieve(context.Background(), "q", 4); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if source.gotTopK != 4 {
		t.Errorf("source queried with topK=%d, want 4", source.gotTopK)
	}
}

func TestRerankingRetriever_SourceError(t *testing.T) {
	source := &stubSource{err: errors.New("db locked")}
	r := NewRetriever(source, &NoOpReranker{}, 4)

	if _, err := r.Retrieve(context.Background(), "q", 2); err == nil {
		t.Fatal("expected error, got nil")
	}
}
