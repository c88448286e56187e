package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/vaani/internal/config"
	"github.com/kalambet/vaani/internal/ingest"
	"github.com/kalambet/vaani/internal/ollama"
	"github.com/kalambet/vaani/internal/retrieval"
	"github.com/kalambet/vaani/internal/storage"
	"github.com/kalambet/vaani/internal/wiki"
)

// --- scrape ---

var scrapeCmd = &cobra.Command{
	Use:   "scrape [query]",
	Short: "Scrape a Wikipedia article to a local text file",
	Long: `Scrape a Wikipedia article to a local text file.

Searches Wikipedia for the query, fetches the best matching article,
strips citations and section markup, and writes the plain text next to
the current directory (or --output). Without a query the configured
default article is scraped.

Examples:
  vaani scrape
  vaani scrape "Salt March" --output ./articles`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		query := cfg.Ingest.DefaultArticle
		if len(args) > 0 {
			query = strings.Join(args, " ")
		}

		printStep("Fetching %q from Wikipedia...", query)
		article, err := wiki.New().Fetch(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("fetching article: %w", err)
		}

		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		path := filepath.Join(outDir, wiki.Slug(article.Title)+".txt")
		if err := os.WriteFile(path, []byte(article.Text), 0o644); err != nil {
			return fmt.Errorf("writing article: %w", err)
		}

		printSuccess("Saved %q to %s (%d bytes)", article.Title, path, len(article.Text))
		return nil
	},
}

func init() {
	scrapeCmd.Flags().String("output", ".", "directory to write the article to")
}

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index [query]",
	Short: "Index an article into the knowledge base",
	Long: `Index an article into the knowledge base.

Without flags the query (default: the configured article) is fetched
from Wikipedia, chunked, embedded, and stored; existing chunks for the
article are replaced. With --file a local .txt or .pdf is indexed
instead, under the file's base name unless --article is given.

Examples:
  vaani index
  vaani index "Salt March"
  vaani index --file ./gandhi.pdf --article "Mahatma Gandhi"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		articleName, _ := cmd.Flags().GetString("article")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		ollamaClient := ollama.New(cfg.Ollama.BaseURL)
		if err := ollama.EnsureReady(ctx, ollamaClient, []string{cfg.Ollama.EmbedModel}, os.Stderr); err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
		vectorStore := retrieval.NewSQLiteStore(store.DB())
		splitter := ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
		indexer := ingest.NewIndexer(splitter, embedder, vectorStore, slog.Default())

		if file != "" {
			if articleName == "" {
				articleName = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			}
			printStep("Indexing %s as %q...", file, articleName)
			n, err := indexer.IndexFile(ctx, articleName, file)
			if err != nil {
				return fmt.Errorf("indexing file: %w", err)
			}
			printSuccess("Indexed %d chunks from %s", n, file)
			return nil
		}

		query := cfg.Ingest.DefaultArticle
		if len(args) > 0 {
			query = strings.Join(args, " ")
		}

		printStep("Fetching %q from Wikipedia...", query)
		article, err := wiki.New().Fetch(ctx, query)
		if err != nil {
			return fmt.Errorf("fetching article: %w", err)
		}

		printStep("Chunking and embedding %q...", article.Title)
		n, err := indexer.IndexText(ctx, article.Title, article.Text)
		if err != nil {
			return fmt.Errorf("indexing article: %w", err)
		}

		printSuccess("Indexed %d chunks for %q", n, article.Title)
		return nil
	},
}

func init() {
	indexCmd.Flags().String("file", "", "local .txt or .pdf file to index")
	indexCmd.Flags().String("article", "", "article name to store file chunks under")
}
