package retrieval

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database with the article_vectors table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE article_vectors (
			id TEXT PRIMARY KEY,
			article TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text_chunk TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestInsertAndSearch(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	vec := makeTestVector(768, 0.1)
	err := s.Insert([]Record{{
		ID:         "r1",
		Article:    "Mahatma Gandhi",
		ChunkIndex: 0,
		TextChunk:  "Gandhi led the Dandi Salt March in 1930",
		Embedding:  vec,
		CreatedAt:  time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(vec, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %f, want > 0.99", results[0].Score)
	}
	if results[0].ID != "r1" {
		t.Errorf("ID = %q, want %q", results[0].ID, "r1")
	}
	if results[0].Article != "Mahatma Gandhi" {
		t.Errorf("Article = %q", results[0].Article)
	}
}

func TestSearch_TopK(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, Record{
			ID:         fmt.Sprintf("r%d", i),
			Article:    "Mahatma Gandhi",
			ChunkIndex: i,
			TextChunk:  "text",
			Embedding:  makeTestVector(768, float32(i)*0.01),
			CreatedAt:  time.Now().UTC(),
		})
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(makeTestVector(768, 0.05), 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}

	// Highest similarity first.
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by score: %f then %f", results[i-1].Score, results[i].Score)
		}
	}
}

func TestSearch_EmptyTable(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	results, err := s.Search(makeTestVector(768, 0.1), 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSearch_TopKZero(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	results, err := s.Search(makeTestVector(768, 0.1), 0)
	if err != nil {
		t.Fatalf("Search with topK=0: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for topK=0, got %d", len(results))
	}
}

func TestDeleteArticle(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	if err := s.Insert([]Record{
		{ID: "g0", Article: "Mahatma Gandhi", ChunkIndex: 0, TextChunk: "a", Embedding: makeTestVector(768, 0.1), CreatedAt: time.Now().UTC()},
		{ID: "g1", Article: "Mahatma Gandhi", ChunkIndex: 1, TextChunk: "b", Embedding: makeTestVector(768, 0.2), CreatedAt: time.Now().UTC()},
		{ID: "n0", Article: "Jawaharlal Nehru", ChunkIndex: 0, TextChunk: "c", Embedding: makeTestVector(768, 0.3), CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := s.DeleteArticle("Mahatma Gandhi")
	if err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d records, want 2", n)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count after delete = %d, want 1", count)
	}

	// Deleting an unindexed article removes nothing but is not an error.
	n, err = s.DeleteArticle("Mahatma Gandhi")
	if err != nil {
		t.Fatalf("second DeleteArticle: %v", err)
	}
	if n != 0 {
		t.Errorf("second delete removed %d records, want 0", n)
	}
}

func TestCount(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteStore(db)

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("empty count = %d, want 0", count)
	}

	if err := s.Insert([]Record{
		{ID: "r1", Article: "a", ChunkIndex: 0, TextChunk: "t", Embedding: makeTestVector(768, 0.1), CreatedAt: time.Now().UTC()},
		{ID: "r2", Article: "a", ChunkIndex: 1, TextChunk: "t", Embedding: makeTestVector(768, 0.2), CreatedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	count, err = s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vec := makeTestVector(768, 0.42)
	decoded, err := decodeFloat32s(encodeFloat32s(vec))
	if err != nil {
		t.Fatalf("decodeFloat32s: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("got %d floats, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Fatalf("decoded[%d] = %f, want %f", i, decoded[i], vec[i])
		}
	}
}

func TestDecodeCorruptBlob(t *testing.T) {
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for blob length not a multiple of 4")
	}
}
