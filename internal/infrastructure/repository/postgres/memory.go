// Package postgres persists session memory records.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

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

type MemoryRepository struct {
	db *sql.DB
}

func NewMemoryRepository(db *sql.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func (r *MemoryRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083002)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS memory_records (
	id TEXT PRIMARY KEY,
	record_type TEXT NOT NULL,
	session_id TEXT NOT NULL,
	question TEXT NOT NULL DEFAULT '',
	answer TEXT NOT NULL DEFAULT '',
	meta JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_records_session ON memory_records(session_id, record_type);
CREATE INDEX IF NOT EXISTS idx_memory_records_created_at ON memory_records(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *MemoryRepository) Save(ctx context.Context, record *domain.MemoryRecord) error {
	metaJSON, err := json.Marshal(orEmptyMeta(record.Meta))
	if err != nil {
		return fmt.Errorf("marshal memory meta: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO memory_records (id, record_type, session_id, question, answer, meta, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, record.ID, string(record.Type), record.SessionID, record.Question, record.Answer, metaJSON, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert memory record: %w", err)
	}
	return nil
}

// Search fetches the session's records and ranks them in Go by how many
// times the lowercased query occurs in question plus answer. Records with
// no occurrence are dropped.
func (r *MemoryRepository) Search(
	ctx context.Context,
	sessionID, query string,
	k int,
	typeFilter domain.MemoryRecordType,
) ([]domain.MemoryRecord, error) {
	if k <= 0 {
		return []domain.MemoryRecord{}, nil
	}

	sqlQuery := `
SELECT id, record_type, session_id, question, answer, meta, created_at
FROM memory_records
WHERE session_id = $1
ORDER BY created_at DESC
`
	args := []any{sessionID}
	if typeFilter != "" {
		sqlQuery = `
SELECT id, record_type, session_id, question, answer, meta, created_at
FROM memory_records
WHERE session_id = $1 AND record_type = $2
ORDER BY created_at DESC
`
		args = append(args, string(typeFilter))
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query memory records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.MemoryRecord, 0)
	for rows.Next() {
		var (
			record     domain.MemoryRecord
			recordType string
			metaRaw    []byte
		)
		if err := rows.Scan(
			&record.ID,
			&recordType,
			&record.SessionID,
			&record.Question,
			&record.Answer,
			&metaRaw,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		record.Type = domain.MemoryRecordType(recordType)
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &record.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal memory meta: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory records: %w", err)
	}

	ranked := rankByLexicalMatch(records, query)
	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k], nil
}

func rankByLexicalMatch(records []domain.MemoryRecord, query string) []domain.MemoryRecord {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return records
	}

	type scored struct {
		record domain.MemoryRecord
		count  int
	}
	matched := make([]scored, 0, len(records))
	for _, record := range records {
		haystack := strings.ToLower(record.Question + " " + record.Answer)
		count := strings.Count(haystack, needle)
		if count == 0 {
			continue
		}
		matched = append(matched, scored{record: record, count: count})
	}
	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].count > matched[b].count
	})

	out := make([]domain.MemoryRecord, len(matched))
	for i, s := range matched {
		out[i] = s.record
	}
	return out
}

func orEmptyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}

var _ ports.MemoryStore = (*MemoryRepository)(nil)
