package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/vaani/internal/storage"
	"github.com/kalambet/vaani/internal/wiki"
)

// JobTypeIndexArticle jobs fetch a Wikipedia article and index it.
const JobTypeIndexArticle = "index_article"

// IndexJobPayload is the JSON payload of an index_article job.
type IndexJobPayload struct {
	Query string `json:"query"`
}

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// ArticleFetcher locates and downloads an article for a search query.
type ArticleFetcher interface {
	Fetch(ctx context.Context, query string) (wiki.Article, error)
}

// ArticleIndexer chunks, embeds, and stores article text.
type ArticleIndexer interface {
	IndexText(ctx context.Context, article, text string) (int, error)
}

// Worker processes index_article jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	fetcher ArticleFetcher
	indexer ArticleIndexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, fetcher ArticleFetcher, indexer ArticleIndexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		fetcher: fetcher,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_article job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeIndexArticle})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload IndexJobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.Query == "" {
		return fmt.Errorf("job has no query")
	}

	article, err := w.fetcher.Fetch(ctx, payload.Query)
	if err != nil {
		return fmt.Errorf("fetching article for %q: %w", payload.Query, err)
	}

	count, err := w.indexer.IndexText(ctx, article.Title, article.Text)
	if err != nil {
		return fmt.Errorf("indexing %q: %w", article.Title, err)
	}

	w.logger.Info("indexed article", "article", article.Title, "chunks", count)
	return nil
}
