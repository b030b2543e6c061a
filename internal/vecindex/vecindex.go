// Package vecindex mirrors analyzed scenes into PostgreSQL with pgvector so
// scene descriptions can be searched by semantic similarity. The index is
// optional: it is only opened when a DSN is configured, and callers treat its
// failures as warnings rather than pipeline errors.
package vecindex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hipo65opo/SceneAnalyzerPlayer/internal/models"
)

// embeddingDims matches the text-embedding-3-small output size.
const embeddingDims = 1536

// EmbedFunc turns text into an embedding vector.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Result is one similarity-search hit.
type Result struct {
	SessionID   int64
	SceneID     int64
	Timestamp   float64
	Description string
	Similarity  float64
}

// Index is a vector index over analyzed scene descriptions.
type Index struct {
	pool   *pgxpool.Pool
	embed  EmbedFunc
	logger *slog.Logger
}

// Open connects to PostgreSQL at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string, embed EmbedFunc, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to index database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping index database: %w", err)
	}

	idx := &Index{pool: pool, embed: embed, logger: logger}
	if err := idx.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the connection pool.
func (i *Index) Close() {
	if i.pool != nil {
		i.pool.Close()
	}
}

func (i *Index) initSchema(ctx context.Context) error {
	if _, err := i.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	_, err := i.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS scene_index (
			id          SERIAL PRIMARY KEY,
			session_id  BIGINT NOT NULL,
			scene_id    BIGINT NOT NULL,
			timestamp   DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL,
			embedding   vector(%d),
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE(session_id, scene_id)
		)`, embeddingDims))
	if err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}

	_, err = i.pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_scene_index_embedding
		ON scene_index USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`)
	if err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}

// Upsert embeds a scene's description and stores or replaces its index row.
// Scenes without a description are skipped.
func (i *Index) Upsert(ctx context.Context, scene models.Scene) error {
	if scene.Description == "" {
		return nil
	}

	embedding, err := i.embed(ctx, scene.Description)
	if err != nil {
		return fmt.Errorf("embed scene %d: %w", scene.ID, err)
	}

	_, err = i.pool.Exec(ctx, `
		INSERT INTO scene_index (session_id, scene_id, timestamp, description, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, scene_id) DO UPDATE
		SET description = EXCLUDED.description,
		    embedding   = EXCLUDED.embedding,
		    timestamp   = EXCLUDED.timestamp`,
		scene.SessionID, scene.ID, scene.Timestamp, scene.Description, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("index scene %d: %w", scene.ID, err)
	}
	return nil
}

// Search returns the scenes most similar to the query text, best match first.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	queryEmbedding, err := i.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := i.pool.Query(ctx, `
		SELECT session_id, scene_id, timestamp, description,
		       1 - (embedding <=> $1) AS similarity
		FROM scene_index
		ORDER BY embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search scene index: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SessionID, &r.SceneID, &r.Timestamp, &r.Description, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
