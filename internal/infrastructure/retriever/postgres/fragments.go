// Package postgres persists fragments in Postgres with pgvector and serves
// retrieval by inner-product similarity.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/mpetrov/refragd/internal/core/domain"
	"github.com/mpetrov/refragd/internal/core/ports"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

type FragmentStore struct {
	db       *sql.DB
	embedder ports.Embedder
	dim      int
}

func NewFragmentStore(db *sql.DB, embedder ports.Embedder, dim int) *FragmentStore {
	return &FragmentStore{db: db, embedder: embedder, dim: dim}
}

func (s *FragmentStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS fragments (
	fragment_id TEXT PRIMARY KEY,
	parent_doc_id TEXT,
	text TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fragments_parent_doc ON fragments(parent_doc_id);
`, s.dim)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *FragmentStore) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return s.embedder.EmbedQuery(ctx, query)
}

// Retrieve ranks by inner product. pgvector's <#> operator returns the
// negated inner product, so ascending order yields the best match first.
func (s *FragmentStore) Retrieve(ctx context.Context, query string, k int) ([]domain.Candidate, error) {
	if k <= 0 {
		return []domain.Candidate{}, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT fragment_id, parent_doc_id, text, embedding, metadata, -(embedding <#> $1) AS score
FROM fragments
ORDER BY embedding <#> $1
LIMIT $2
`, pgvector.NewVector(queryVector), k)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Candidate, 0, k)
	for rows.Next() {
		var (
			fragmentID  string
			parentDocID sql.NullString
			text        string
			embedding   pgvector.Vector
			metadataRaw []byte
			score       float64
		)
		if err := rows.Scan(&fragmentID, &parentDocID, &text, &embedding, &metadataRaw, &score); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}

		metadata := map[string]any{}
		if len(metadataRaw) > 0 {
			if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
				return nil, fmt.Errorf("unmarshal fragment metadata: %w", err)
			}
		}
		metadata["fragment_id"] = fragmentID
		if parentDocID.Valid && parentDocID.String != "" {
			metadata["parent_doc_id"] = parentDocID.String
		}
		metadata["score"] = score

		out = append(out, domain.Candidate{
			Text:     text,
			Vector:   embedding.Slice(),
			Metadata: metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fragments: %w", err)
	}
	return out, nil
}

// AddFragments upserts by fragment id.
func (s *FragmentStore) AddFragments(ctx context.Context, fragments []domain.Fragment) error {
	now := time.Now().UTC()
	for _, fragment := range fragments {
		metadataJSON, err := json.Marshal(fragment.Metadata)
		if err != nil {
			return fmt.Errorf("marshal fragment metadata: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO fragments (fragment_id, parent_doc_id, text, embedding, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (fragment_id) DO UPDATE
SET parent_doc_id = EXCLUDED.parent_doc_id,
    text = EXCLUDED.text,
    embedding = EXCLUDED.embedding,
    metadata = EXCLUDED.metadata,
    updated_at = EXCLUDED.updated_at
`, fragment.FragmentID, nullableString(fragment.ParentDocID), fragment.Text,
			pgvector.NewVector(fragment.Embedding), metadataJSON, now)
		if err != nil {
			return fmt.Errorf("upsert fragment %s: %w", fragment.FragmentID, err)
		}
	}
	return nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

var (
	_ ports.Retriever     = (*FragmentStore)(nil)
	_ ports.FragmentIndex = (*FragmentStore)(nil)
)
