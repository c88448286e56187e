package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/kalambet/vaani/internal/chat"
	"github.com/kalambet/vaani/internal/ingest"
	"github.com/kalambet/vaani/internal/pipeline"
	"github.com/kalambet/vaani/internal/storage"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxAudioUploadSize = 15 << 20 // 15MB

// Asker runs questions through the text and voice pipelines.
type Asker interface {
	RunText(ctx context.Context, sessionID, message string) (chat.Result, error)
	RunVoice(ctx context.Context, sessionID, filename string, audio io.Reader, sourceLanguage string) (pipeline.VoiceResult, error)
}

// SessionStore is the slice of the chat store the API needs.
type SessionStore interface {
	CreateSession() (storage.Session, error)
	GetSession(id string) (storage.Session, error)
	DeleteSession(id string) error
	ListSessions() ([]storage.SessionSummary, error)
	FullHistory(sessionID string) ([]storage.Message, error)
	EnqueueJob(job storage.Job) error
}

// KnowledgeCounter reports how many chunks the vector table holds.
type KnowledgeCounter interface {
	Count() (int, error)
}

// Deps holds dependencies for the HTTP API.
type Deps struct {
	Store          SessionStore
	Pipeline       Asker
	Vectors        KnowledgeCounter // optional; health reports 0 chunks when nil
	Token          string           // bearer token guarding /api/reindex
	DefaultArticle string           // reindex target when the request names none
}

// NewHandler builds the HTTP API router. CORS is open to the local Vite
// dev server so the frontend can talk to it directly.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", handleHealth(deps))
	r.Route("/api", func(r chi.Router) {
		r.Post("/session", handleCreateSession(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/session/{id}/history", handleSessionHistory(deps))
		r.Delete("/session/{id}", handleDeleteSession(deps))
		r.Post("/chat", handleChat(deps))
		r.Post("/chat/audio", handleChatAudio(deps))
		r.With(BearerAuth(deps.Token)).Post("/reindex", handleReindex(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks := 0
		if deps.Vectors != nil {
			if n, err := deps.Vectors.Count(); err == nil {
				chunks = n
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":         "healthy",
			"indexed_chunks": chunks,
		})
	}
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := deps.Store.CreateSession()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create session: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"session_id": session.ID})
	}
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Store.ListSessions()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}
		if sessions == nil {
			sessions = []storage.SessionSummary{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"sessions": sessions})
	}
}

func handleSessionHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if _, err := deps.Store.GetSession(id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "session not found")
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load session: %v", err)
			return
		}

		messages, err := deps.Store.FullHistory(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load history: %v", err)
			return
		}
		if messages == nil {
			messages = []storage.Message{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"messages": messages})
	}
}

func handleDeleteSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteSession(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete session: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		result, err := deps.Pipeline.RunText(r.Context(), req.SessionID, req.Message)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "upstream_error", "chat failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"answer": result.Answer,
			"source": result.Source,
		})
	}
}

func handleChatAudio(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAudioUploadSize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxAudioUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		sessionID := r.FormValue("session_id")
		if sessionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "session_id is required")
			return
		}
		language := r.FormValue("language")
		if language == "" {
			language = "hi-IN"
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "audio file is required")
			return
		}
		defer file.Close()

		audio, err := io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "failed to read audio: %v", err)
			return
		}
		if len(audio) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "audio file is empty")
			return
		}

		result, err := deps.Pipeline.RunVoice(r.Context(), sessionID, header.Filename, bytes.NewReader(audio), language)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusBadGateway, "upstream_error", "voice chat failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"transcription": result.Transcription,
			"translation":   result.Translation,
			"answer":        result.Answer,
			"source":        result.Source,
		})
	}
}

type reindexRequest struct {
	Query string `json:"query"`
}

func handleReindex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req reindexRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}
		if req.Query == "" {
			req.Query = deps.DefaultArticle
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		payload, err := json.Marshal(ingest.IndexJobPayload{Query: req.Query})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        ingest.JobTypeIndexArticle,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "queued",
			"job_id": job.ID,
			"query":  req.Query,
		})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
