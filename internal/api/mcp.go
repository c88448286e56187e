package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/vaani/internal/retrieval"
	"github.com/kalambet/vaani/internal/storage"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// MCPSessionStore is the slice of the chat store the MCP tools need.
type MCPSessionStore interface {
	CreateSession() (storage.Session, error)
	ListSessions() ([]storage.SessionSummary, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     MCPSessionStore
	Pipeline  Asker
	Retriever MCPRetriever
	TopK      int
}

// NewMCPServer creates an MCP server exposing the assistant over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"vaani",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vaani answers questions about an indexed Wikipedia article, with per-session conversation memory."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question about the indexed article. Answers from the session's conversation history when possible, otherwise from the article itself."),
			mcp.WithString("question", mcp.Description("The question, in English"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; a new session is created when omitted")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_article",
			mcp.WithDescription("Semantically search the indexed article and return the most relevant chunks without generating an answer."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of chunks (default 2)")),
		),
		mcpSearchArticle(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"vaani://sessions",
			"Chat Sessions",
			mcp.WithResourceDescription("All chat sessions with their latest message preview"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		sessionID := req.GetString("session_id", "")
		if sessionID == "" {
			session, err := deps.Store.CreateSession()
			if err != nil {
				return mcpError(fmt.Sprintf("failed to create session: %v", err)), nil
			}
			sessionID = session.ID
		}

		result, err := deps.Pipeline.RunText(ctx, sessionID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"answer":     result.Answer,
			"source":     result.Source,
			"session_id": sessionID,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchArticle(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", deps.TopK)
		if limit <= 0 {
			limit = 2
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID         string  `json:"id"`
			Article    string  `json:"article"`
			ChunkIndex int     `json:"chunk_index"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}

		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				ID:         c.ID,
				Article:    c.Article,
				ChunkIndex: c.ChunkIndex,
				Text:       c.Text,
				Score:      c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessions, err := deps.Store.ListSessions()
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}

		type sessionSummary struct {
			ID          string `json:"id"`
			LastMessage string `json:"last_message"`
			UpdatedAt   string `json:"updated_at"`
		}

		summaries := make([]sessionSummary, len(sessions))
		for i, s := range sessions {
			preview := s.LastMessage
			if utf8.RuneCountInString(preview) > 200 {
				runes := []rune(preview)
				preview = string(runes[:200]) + "..."
			}
			summaries[i] = sessionSummary{
				ID:          s.ID,
				LastMessage: preview,
				UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
