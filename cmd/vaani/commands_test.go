package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/vaani/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskFlow_CreatesSessionThenChats(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/session": `{"session_id":"sess-123"}`,
		"POST /api/chat":    `{"answer":"Gandhi was born in 1869.","source":"vectordb"}`,
	})

	client := ts.client()

	resp, err := client.post(ctx, "/api/session", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var created map[string]string
	if err := decodeJSON(resp, &created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created["session_id"] != "sess-123" {
		t.Fatalf("session_id = %q, want sess-123", created["session_id"])
	}

	resp, err = client.post(ctx, "/api/chat", map[string]string{
		"session_id": created["session_id"],
		"message":    "When was Gandhi born?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result struct {
		Answer string `json:"answer"`
		Source string `json:"source"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.Answer != "Gandhi was born in 1869." {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.Source != "vectordb" {
		t.Errorf("source = %q, want vectordb", result.Source)
	}

	if len(ts.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(ts.requests))
	}
	var chatBody map[string]string
	if err := json.Unmarshal([]byte(ts.requests[1].Body), &chatBody); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if chatBody["session_id"] != "sess-123" {
		t.Errorf("chat session_id = %q, want sess-123", chatBody["session_id"])
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing question")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention missing args", err.Error())
	}
}

func TestSessionsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/sessions": `{"sessions":[{"id":"sess-001","lastMessage":"Who was Gandhi?","created_at":"2025-01-01T00:00:00Z","updated_at":"2025-01-01T00:05:00Z"}]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/api/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Sessions []struct {
			ID          string `json:"id"`
			LastMessage string `json:"lastMessage"`
		} `json:"sessions"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(result.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(result.Sessions))
	}
	if result.Sessions[0].ID != "sess-001" {
		t.Errorf("id = %q, want sess-001", result.Sessions[0].ID)
	}
	if result.Sessions[0].LastMessage != "Who was Gandhi?" {
		t.Errorf("lastMessage = %q", result.Sessions[0].LastMessage)
	}
}

func TestSessionsShow(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/session/sess-001/history": `{"messages":[{"role":"user","content":"Who was Gandhi?"},{"role":"assistant","content":"A leader of Indian independence."}]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/api/session/sess-001/history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result.Messages))
	}
	if result.Messages[0].Role != "user" || result.Messages[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", result.Messages[0].Role, result.Messages[1].Role)
	}
}

func TestIndexCommand_SendsAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/reindex": `{"status":"queued","job_id":"job-42","query":"Salt March"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/api/reindex", map[string]string{"query": "Salt March"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "queued" {
		t.Errorf("status = %q, want queued", result["status"])
	}
	if result["job_id"] != "job-42" {
		t.Errorf("job_id = %q, want job-42", result["job_id"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["query"] != "Salt March" {
		t.Errorf("body.query = %q, want Salt March", body["query"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"healthy","indexed_chunks":0}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestAPIClient_NoTokenOmitsAuthHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"healthy","indexed_chunks":0}`,
	})

	client := ts.client()
	client.token = ""

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want empty", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.post(ctx, "/api/reindex", nil)
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Ollama.EmbedModel = "nomic-embed-text"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
