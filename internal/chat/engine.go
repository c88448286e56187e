package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/vaani/internal/groq"
	"github.com/kalambet/vaani/internal/retrieval"
	"github.com/kalambet/vaani/internal/storage"
)

// Answer sources.
const (
	SourceHistory  = "history"
	SourceVectorDB = "vectordb"
)

const (
	// retrievalHistoryTurns caps how much of the window is repeated in
	// the retrieval prompt.
	retrievalHistoryTurns = 6

	historyTemperature   = 0.2
	retrievalTemperature = 0.3
	answerMaxTokens      = 512
)

// HistoryStore is the slice of the chat store the engine needs.
type HistoryStore interface {
	RecentMessages(sessionID string, limit int) ([]storage.Message, error)
	AppendMessage(sessionID, role, content string, metadata map[string]any) (int64, error)
}

// ChunkRetriever returns the chunks most similar to a query.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// Generator produces a chat completion.
type Generator interface {
	Complete(ctx context.Context, messages []groq.Message, temperature float64, maxTokens int) (string, error)
}

// Result is the outcome of answering one question.
type Result struct {
	Answer string
	Source string
	Chunks []retrieval.ContextChunk
}

// Engine answers questions in two phases. Phase one asks the model to
// answer from the session's sliding window alone; when the window is
// empty or the model signals it cannot, phase two retrieves article
// chunks and asks again with that context. Both turns are persisted.
type Engine struct {
	store      HistoryStore
	retriever  ChunkRetriever
	generator  Generator
	windowSize int
	topK       int
	logger     *slog.Logger
}

// NewEngine creates an Engine over the given store, retriever, and generator.
func NewEngine(store HistoryStore, retriever ChunkRetriever, generator Generator, windowSize, topK int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      store,
		retriever:  retriever,
		generator:  generator,
		windowSize: windowSize,
		topK:       topK,
		logger:     logger,
	}
}

// verdict is the JSON contract of the phase one response.
type verdict struct {
	Status  *string `json:"status"`
	Content *string `json:"content"`
}

// decodeVerdict parses the phase one response. Any malformed output is
// treated as a failure verdict so the engine falls through to retrieval
// rather than surfacing a parse error to the caller.
func (e *Engine) decodeVerdict(raw string) (status, content string) {
	var v verdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err != nil {
		e.logger.Warn("history verdict is not valid JSON, falling back to retrieval", "error", err)
		return "failure", ""
	}
	if v.Status == nil || v.Content == nil {
		e.logger.Warn("history verdict missing fields, falling back to retrieval")
		return "failure", ""
	}
	return *v.Status, *v.Content
}

// answerFromHistory runs phase one. It returns ok=false when history is
// empty or the model could not answer; it only errors on transport or
// generation failure.
func (e *Engine) answerFromHistory(ctx context.Context, question string, history []storage.Message) (answer string, ok bool, err error) {
	if len(history) == 0 {
		return "", false, nil
	}

	raw, err := e.generator.Complete(ctx, buildHistoryMessages(question, history), historyTemperature, answerMaxTokens)
	if err != nil {
		return "", false, fmt.Errorf("answering from history: %w", err)
	}

	status, content := e.decodeVerdict(raw)
	if status != "success" {
		return "", false, nil
	}
	return content, true, nil
}

// answerWithRetrieval runs phase two.
func (e *Engine) answerWithRetrieval(ctx context.Context, question string, history []storage.Message) (string, []retrieval.ContextChunk, error) {
	chunks, err := e.retriever.Retrieve(ctx, question, e.topK)
	if err != nil {
		return "", nil, fmt.Errorf("retrieving context: %w", err)
	}

	answer, err := e.generator.Complete(ctx, buildRetrievalMessages(question, history, chunks), retrievalTemperature, answerMaxTokens)
	if err != nil {
		return "", nil, fmt.Errorf("answering with retrieval: %w", err)
	}
	return strings.TrimSpace(answer), chunks, nil
}

// Answer resolves one user question within a session and persists both
// the user turn and the assistant turn. userMeta is stored verbatim on
// the user message so callers can attach provenance such as the raw
// transcription.
func (e *Engine) Answer(ctx context.Context, sessionID, question string, userMeta map[string]any) (Result, error) {
	history, err := e.store.RecentMessages(sessionID, e.windowSize)
	if err != nil {
		return Result{}, fmt.Errorf("loading history: %w", err)
	}
	e.logger.Debug("loaded history window", "session", sessionID, "messages", len(history))

	answer, ok, err := e.answerFromHistory(ctx, question, history)
	if err != nil {
		return Result{}, err
	}

	res := Result{Answer: answer, Source: SourceHistory}
	if !ok {
		answer, chunks, err := e.answerWithRetrieval(ctx, question, history)
		if err != nil {
			return Result{}, err
		}
		res = Result{Answer: answer, Source: SourceVectorDB, Chunks: chunks}
	}
	e.logger.Info("answered question", "session", sessionID, "source", res.Source, "chunks", len(res.Chunks))

	if _, err := e.store.AppendMessage(sessionID, storage.RoleUser, question, userMeta); err != nil {
		return Result{}, fmt.Errorf("saving user message: %w", err)
	}
	_, err = e.store.AppendMessage(sessionID, storage.RoleAssistant, res.Answer, map[string]any{
		"source":      res.Source,
		"chunks_used": len(res.Chunks),
	})
	if err != nil {
		return Result{}, fmt.Errorf("saving assistant message: %w", err)
	}

	return res, nil
}
