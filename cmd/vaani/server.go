package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/vaani/internal/api"
	"github.com/kalambet/vaani/internal/asr"
	"github.com/kalambet/vaani/internal/chat"
	"github.com/kalambet/vaani/internal/config"
	"github.com/kalambet/vaani/internal/groq"
	"github.com/kalambet/vaani/internal/ingest"
	"github.com/kalambet/vaani/internal/ollama"
	"github.com/kalambet/vaani/internal/pipeline"
	"github.com/kalambet/vaani/internal/reranking"
	"github.com/kalambet/vaani/internal/retrieval"
	"github.com/kalambet/vaani/internal/storage"
	"github.com/kalambet/vaani/internal/translate"
	"github.com/kalambet/vaani/internal/wiki"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the vaani server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running vaani server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vaani system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "vaani.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "vaani version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Server.APIToken == "" {
		printWarning("no API token configured; /api/reindex will reject all requests")
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("vaani is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("vaani is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check Ollama readiness; the embedding model is required, the
	// reranking model only when reranking is on.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	models := []string{cfg.Ollama.EmbedModel}
	if cfg.Retrieval.RerankingEnabled {
		models = append(models, cfg.Ollama.RerankModel)
	}
	if err := ollama.EnsureReady(ctx, ollamaClient, models, os.Stderr); err != nil {
		return err
	}

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the retrieval stack.
	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	baseRetriever := retrieval.NewRetriever(embedder, vectorStore)

	retriever := buildRetriever(cfg, ollamaClient, baseRetriever)

	// Build the answer engine and the voice pipeline around it.
	groqClient := groq.NewClient(cfg.Groq.APIKey, cfg.Groq.BaseURL, cfg.Groq.Model)
	engine := chat.NewEngine(store, retriever, groqClient, cfg.Chat.WindowSize, cfg.Retrieval.TopK, slog.Default())

	asrClient := asr.New(cfg.ASR.BaseURL)
	if !asrClient.IsRunning(ctx) {
		slog.Warn("ASR service not reachable; voice input will fail until it is up", "url", cfg.ASR.BaseURL)
	}
	translator := translate.New(cfg.Sarvam.APIKey, cfg.Sarvam.BaseURL, cfg.Sarvam.Model)
	pipe := pipeline.New(asrClient, translator, engine, slog.Default())

	// Start the ingest worker.
	splitter := ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	indexer := ingest.NewIndexer(splitter, embedder, vectorStore, slog.Default())
	worker := ingest.NewWorker(store, wiki.New(), indexer, 500*time.Millisecond)
	go worker.Run(ctx)

	if n, err := vectorStore.Count(); err == nil && n == 0 {
		printWarning("knowledge base is empty; run 'vaani index' to index %q", cfg.Ingest.DefaultArticle)
	}

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Store:          store,
		Pipeline:       pipe,
		Vectors:        vectorStore,
		Token:          cfg.Server.APIToken,
		DefaultArticle: cfg.Ingest.DefaultArticle,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "vaani listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildRetriever wraps the base retriever with LLM reranking when it
// is enabled, over-fetching candidates so the reranker has room to
// reorder before trimming back to top-k.
func buildRetriever(cfg config.Config, ollamaClient *ollama.Client, base *retrieval.Retriever) chat.ChunkRetriever {
	if !cfg.Retrieval.RerankingEnabled {
		return base
	}

	rerankTimeout, err := time.ParseDuration(cfg.Retrieval.RerankingTimeout)
	if err != nil {
		slog.Warn("invalid reranking timeout, using default 5s", "value", cfg.Retrieval.RerankingTimeout, "error", err)
		rerankTimeout = 5 * time.Second
	}
	reranker := reranking.NewReranker(
		ollamaClient,
		cfg.Ollama.RerankModel,
		cfg.Retrieval.RerankingEnabled,
		rerankTimeout,
		cfg.Retrieval.RerankingThreshold,
		cfg.Retrieval.TopK,
	)
	return reranking.NewRetriever(base, reranker, cfg.Retrieval.TopK*3)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("vaani is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop vaani (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to vaani (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	// Check server health and chunk count.
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var health struct {
			Status        string `json:"status"`
			IndexedChunks int    `json:"indexed_chunks"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&health)
		resp.Body.Close()
		if resp.StatusCode == 200 && decodeErr == nil {
			printStatus("Server", "running on port %d", cfg.Server.Port)
			printStatus("Indexed chunks", "%s", countLabel(health.IndexedChunks, 100000))
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	// Check the ASR sidecar.
	asrResp, err := client.Get(cfg.ASR.BaseURL + "/health")
	if err != nil {
		printStatus("ASR", "not running")
	} else {
		asrResp.Body.Close()
		printStatus("ASR", "running at %s", cfg.ASR.BaseURL)
	}

	printStatus("Chat model", "%s (Groq)", cfg.Groq.Model)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	if cfg.Retrieval.RerankingEnabled {
		printStatus("Rerank model", "%s", cfg.Ollama.RerankModel)
	}
	printStatus("Default article", "%s", cfg.Ingest.DefaultArticle)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
