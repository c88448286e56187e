package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/vaani/internal/retrieval"
)

// BatchEmbedder generates embeddings for a batch of chunks.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer chunks article text, embeds the chunks, and stores them in
// the vector table. Re-indexing an article replaces its previous chunks.
type Indexer struct {
	splitter *Splitter
	embedder BatchEmbedder
	store    retrieval.VectorStore
	logger   *slog.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(splitter *Splitter, embedder BatchEmbedder, store retrieval.VectorStore, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// IndexText indexes article text under the given article name and
// returns the number of chunks stored.
func (ix *Indexer) IndexText(ctx context.Context, article, text string) (int, error) {
	chunks := ix.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("article %q has no indexable content", article)
	}
	ix.logger.Info("chunked article", "article", article, "chunks", len(chunks))

	vectors, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			Article:    article,
			ChunkIndex: i,
			TextChunk:  chunk,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}

	removed, err := ix.store.DeleteArticle(article)
	if err != nil {
		return 0, fmt.Errorf("removing stale chunks: %w", err)
	}
	if removed > 0 {
		ix.logger.Info("replaced stale chunks", "article", article, "removed", removed)
	}

	if err := ix.store.Insert(records); err != nil {
		return 0, fmt.Errorf("storing chunks: %w", err)
	}
	return len(records), nil
}

// IndexFile indexes a local .txt or .pdf file.
func (ix *Indexer) IndexFile(ctx context.Context, article, path string) (int, error) {
	var text string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = readPDF(path)
	case ".txt", "":
		var raw []byte
		raw, err = os.ReadFile(path)
		text = string(raw)
	default:
		return 0, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return ix.IndexText(ctx, article, text)
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
