package vecindex

import (
	"context"
	"os"
	"testing"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// TestLiveIndex exercises the index against a real PostgreSQL instance with
// the pgvector extension. Set SCENE_INDEX_TEST_DSN to run it.
func TestLiveIndex(t *testing.T) {
	dsn := os.Getenv("SCENE_INDEX_TEST_DSN")
	if dsn == "" {
		t.Skip("SCENE_INDEX_TEST_DSN not set")
	}

	// A deterministic stub embedding keeps the test independent of any
	// remote model: orthogonal unit vectors per known text.
	known := map[string]int{"a red door": 0, "a crowded street": 1, "red door query": 0}
	embed := func(_ context.Context, text string) ([]float32, error) {
		v := make([]float32, embeddingDims)
		v[known[text]] = 1
		return v, nil
	}

	ctx := context.Background()
	idx, err := Open(ctx, dsn, embed, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	scenes := []models.Scene{
		{ID: 1, SessionID: 9001, Timestamp: 0, Description: "a red door"},
		{ID: 2, SessionID: 9001, Timestamp: 3, Description: "a crowded street"},
		{ID: 3, SessionID: 9001, Timestamp: 7, Description: ""}, // skipped
	}
	for _, sc := range scenes {
		if err := idx.Upsert(ctx, sc); err != nil {
			t.Fatalf("Upsert scene %d: %v", sc.ID, err)
		}
	}
	// Upsert again: unique (session, scene) pair must replace, not duplicate.
	if err := idx.Upsert(ctx, scenes[0]); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}

	results, err := idx.Search(ctx, "red door query", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no search results")
	}
	if results[0].SceneID != 1 {
		t.Errorf("best match scene = %d, want 1", results[0].SceneID)
	}
	if results[0].Similarity < 0.99 {
		t.Errorf("best match similarity = %g, want ~1", results[0].Similarity)
	}
}
