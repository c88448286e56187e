package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/vaani/internal/api"
	"github.com/kalambet/vaani/internal/asr"
	"github.com/kalambet/vaani/internal/chat"
	"github.com/kalambet/vaani/internal/config"
	"github.com/kalambet/vaani/internal/groq"
	"github.com/kalambet/vaani/internal/ollama"
	"github.com/kalambet/vaani/internal/pipeline"
	"github.com/kalambet/vaani/internal/retrieval"
	"github.com/kalambet/vaani/internal/storage"
	"github.com/kalambet/vaani/internal/translate"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP interface over stdio",
	Long: `Serve the MCP interface over stdio.

Exposes the ask and search_article tools and the vaani://sessions
resource to an MCP client such as an editor or agent runtime. Stdout
belongs to the protocol; logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := buildRetriever(cfg, ollamaClient, retrieval.NewRetriever(embedder, vectorStore))

	groqClient := groq.NewClient(cfg.Groq.APIKey, cfg.Groq.BaseURL, cfg.Groq.Model)
	engine := chat.NewEngine(store, retriever, groqClient, cfg.Chat.WindowSize, cfg.Retrieval.TopK, slog.Default())
	translator := translate.New(cfg.Sarvam.APIKey, cfg.Sarvam.BaseURL, cfg.Sarvam.Model)
	pipe := pipeline.New(asr.New(cfg.ASR.BaseURL), translator, engine, slog.Default())

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:     store,
		Pipeline:  pipe,
		Retriever: retriever,
		TopK:      cfg.Retrieval.TopK,
	})

	slog.Info("MCP server listening (stdio transport)")
	if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server: %w", err)
	}
	return nil
}
