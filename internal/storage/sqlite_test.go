package storage

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the migration-created indexes.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_messages_session", "idx_article_vectors_article", "idx_jobs_status_run_after"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestArticleVectorsTableExists verifies the article_vectors table is created
// by migration and supports round-trip.
func TestArticleVectorsTableExists(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(`INSERT INTO article_vectors (id, article, chunk_index, text_chunk, embedding, created_at)
		VALUES ('v1', 'Mahatma Gandhi', 0, 'hello world', X'00000000', '2025-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("INSERT into article_vectors: %v", err)
	}

	var id, article, textChunk string
	var chunkIndex int
	err = s.db.QueryRow(`SELECT id, article, chunk_index, text_chunk FROM article_vectors WHERE id = 'v1'`).
		Scan(&id, &article, &chunkIndex, &textChunk)
	if err != nil {
		t.Fatalf("SELECT from article_vectors: %v", err)
	}
	if id != "v1" || article != "Mahatma Gandhi" || chunkIndex != 0 || textChunk != "hello world" {
		t.Errorf("round-trip mismatch: got id=%q article=%q chunk_index=%d text_chunk=%q", id, article, chunkIndex, textChunk)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("CreateSession returned empty ID")
	}
	if sess.CreatedAt.IsZero() || sess.UpdatedAt.IsZero() {
		t.Error("CreateSession returned zero timestamps")
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("ID = %q, want %q", got.ID, sess.ID)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSession("does-not-exist")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAppendMessage(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	id1, err := s.AppendMessage(sess.ID, RoleUser, "hello", nil)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	id2, err := s.AppendMessage(sess.ID, RoleAssistant, "hi there", nil)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("message IDs not increasing: %d then %d", id1, id2)
	}

	msgs, err := s.FullHistory(sess.ID)
	if err != nil {
		t.Fatalf("FullHistory: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("first message = %q/%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "hi there" {
		t.Errorf("second message = %q/%q", msgs[1].Role, msgs[1].Content)
	}
}

// TestAppendMessageTouchesSession verifies the session's updated_at moves
// forward with each append.
func TestAppendMessageTouchesSession(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Backdate the session so the touch is observable at second granularity.
	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	if _, err := s.db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`, past, sess.ID); err != nil {
		t.Fatalf("backdating session: %v", err)
	}

	if _, err := s.AppendMessage(sess.ID, RoleUser, "ping", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	got, err := s.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UpdatedAt.Before(time.Now().UTC().Add(-time.Minute)) {
		t.Errorf("updated_at = %v, want it touched to roughly now", got.UpdatedAt)
	}
}

func TestAppendMessageUnknownSession(t *testing.T) {
	s := openTestStore(t)

	_, err := s.AppendMessage("no-such-session", RoleUser, "hello", nil)
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	// Nothing should have been written.
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if count != 0 {
		t.Errorf("message count = %d, want 0", count)
	}
}

func TestAppendMessageInvalidRole(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := s.AppendMessage(sess.ID, "system", "nope", nil); err == nil {
		t.Error("expected error for invalid role, got nil")
	}
}

// TestMetadataRoundTrip appends a message with metadata and verifies it comes
// back deep-equal from FullHistory.
func TestMetadataRoundTrip(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	meta := map[string]any{
		"transcription":   "नमस्ते",
		"source_language": "hi-IN",
		"chunks_used":     float64(2),
	}
	if _, err := s.AppendMessage(sess.ID, RoleUser, "hello", meta); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.FullHistory(sess.ID)
	if err != nil {
		t.Fatalf("FullHistory: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if !reflect.DeepEqual(msgs[0].Metadata, meta) {
		t.Errorf("metadata = %#v, want %#v", msgs[0].Metadata, meta)
	}
}

func TestMetadataNilStaysNil(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.AppendMessage(sess.ID, RoleAssistant, "answer", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.FullHistory(sess.ID)
	if err != nil {
		t.Fatalf("FullHistory: %v", err)
	}
	if msgs[0].Metadata != nil {
		t.Errorf("metadata = %#v, want nil", msgs[0].Metadata)
	}
}

// TestRecentMessagesWindow verifies RecentMessages returns a chronological
// suffix of the full history, capped at the limit.
func TestRecentMessagesWindow(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for i := 0; i < 15; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := s.AppendMessage(sess.ID, role, fmt.Sprintf("msg %02d", i), nil); err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
	}

	window, err := s.RecentMessages(sess.ID, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(window) != 10 {
		t.Fatalf("got %d messages, want 10", len(window))
	}

	full, err := s.FullHistory(sess.ID)
	if err != nil {
		t.Fatalf("FullHistory: %v", err)
	}

	// The window must equal the last 10 entries of the full history, in order.
	suffix := full[len(full)-10:]
	for i := range window {
		if window[i].ID != suffix[i].ID || window[i].Content != suffix[i].Content {
			t.Errorf("window[%d] = (%d, %q), want (%d, %q)", i, window[i].ID, window[i].Content, suffix[i].ID, suffix[i].Content)
		}
	}

	if window[len(window)-1].Content != "msg 14" {
		t.Errorf("last window message = %q, want %q", window[len(window)-1].Content, "msg 14")
	}
}

func TestRecentMessagesFewerThanLimit(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.AppendMessage(sess.ID, RoleUser, "only one", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	window, err := s.RecentMessages(sess.ID, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(window) != 1 {
		t.Fatalf("got %d messages, want 1", len(window))
	}
}

func TestRecentMessagesUnknownSession(t *testing.T) {
	s := openTestStore(t)

	window, err := s.RecentMessages("nope", 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(window) != 0 {
		t.Errorf("got %d messages, want 0", len(window))
	}
}

// TestListSessions verifies recency ordering and last-message previews.
func TestListSessions(t *testing.T) {
	s := openTestStore(t)

	first, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Backdate both, then touch only the first via an append so it sorts on top.
	past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	if _, err := s.db.Exec(`UPDATE sessions SET updated_at = ?`, past); err != nil {
		t.Fatalf("backdating sessions: %v", err)
	}
	if _, err := s.AppendMessage(first.ID, RoleUser, "what was Gandhi's role in the salt march?", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	sums, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sums))
	}
	if sums[0].ID != first.ID {
		t.Errorf("first listed session = %q, want the recently touched %q", sums[0].ID, first.ID)
	}
	if sums[0].LastMessage != "what was Gandhi's role in the salt march?" {
		t.Errorf("LastMessage = %q", sums[0].LastMessage)
	}
	if sums[1].ID != second.ID {
		t.Errorf("second listed session = %q, want %q", sums[1].ID, second.ID)
	}
	if sums[1].LastMessage != "" {
		t.Errorf("empty session preview = %q, want empty", sums[1].LastMessage)
	}
}

func TestListSessionsTruncatesPreview(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	long := strings.Repeat("a", 100)
	if _, err := s.AppendMessage(sess.ID, RoleUser, long, nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	sums, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	want := strings.Repeat("a", 60) + "..."
	if sums[0].LastMessage != want {
		t.Errorf("LastMessage = %q (len %d), want 60 runes plus ellipsis", sums[0].LastMessage, len(sums[0].LastMessage))
	}
}

// TestDeleteSessionCascades verifies messages disappear with their session.
func TestDeleteSessionCascades(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.AppendMessage(sess.ID, RoleUser, "hello", nil); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := s.DeleteSession(sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sess.ID).Scan(&count); err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if count != 0 {
		t.Errorf("message count after delete = %d, want 0", count)
	}

	if err := s.DeleteSession(sess.ID); err != ErrNotFound {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

// --- Jobs ---

func TestEnqueueAndClaimJob(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-claim-1",
		Type:        "index_article",
		PayloadJSON: `{"article":"Mahatma Gandhi"}`,
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"index_article"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-claim-1" {
		t.Errorf("ID = %q, want %q", got.ID, "j-claim-1")
	}
	if got.Type != "index_article" {
		t.Errorf("Type = %q, want %q", got.Type, "index_article")
	}
	if got.Status != "running" {
		t.Errorf("Status = %q, want %q", got.Status, "running")
	}
	if got.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got.MaxAttempts)
	}
}

func TestClaimNextJob_Empty(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ClaimNextJob([]string{"index_article"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestClaimNextJob_RespectRunAfter(t *testing.T) {
	s := openTestStore(t)

	job := Job{
		ID:          "j-future",
		Type:        "index_article",
		PayloadJSON: `{}`,
		RunAfter:    time.Now().UTC().Add(1 * time.Hour),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"index_article"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for future run_after, got %+v", got)
	}
}

func TestClaimNextJob_SkipsRunning(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-first", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob first: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob first: %v", err)
	}

	if err := s.EnqueueJob(Job{ID: "j-second", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob second: %v", err)
	}

	got, err := s.ClaimNextJob([]string{"x"})
	if err != nil {
		t.Fatalf("ClaimNextJob second: %v", err)
	}
	if got == nil {
		t.Fatal("ClaimNextJob returned nil")
	}
	if got.ID != "j-second" {
		t.Errorf("ID = %q, want %q", got.ID, "j-second")
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-complete", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.CompleteJob("j-complete"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-complete'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "completed" {
		t.Errorf("status = %q, want %q", status, "completed")
	}
}

func TestFailJob_IncrementsAttempts(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-inc", Type: "x", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-inc", "something broke"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status, lastError string
	var attempts int
	if err := s.db.QueryRow(`SELECT status, attempts, last_error FROM jobs WHERE id = 'j-fail-inc'`).Scan(&status, &attempts, &lastError); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if status != "pending" {
		t.Errorf("status = %q, want %q", status, "pending")
	}
	if lastError != "something broke" {
		t.Errorf("last_error = %q, want %q", lastError, "something broke")
	}
}

func TestFailJob_MaxAttemptsReached(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j-fail-max", Type: "x", PayloadJSON: `{}`, MaxAttempts: 1}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"x"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if err := s.FailJob("j-fail-max", "fatal"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j-fail-max'`).Scan(&status); err != nil {
		t.Fatalf("SELECT: %v", err)
	}
	if status != "failed" {
		t.Errorf("status = %q, want %q", status, "failed")
	}
}
