// Package postgres stores document metadata and chunk text, and serves
// lexical retrieval through PostgreSQL full-text search.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

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

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_categories (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	category TEXT NOT NULL,
	PRIMARY KEY (document_id, category)
);

CREATE TABLE IF NOT EXISTS chunks (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
	PRIMARY KEY (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_chunks_content_tsv ON chunks USING GIN (content_tsv);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Search ranks chunks of ready documents against the given terms with
// ts_rank. matchAll requires every term to appear; otherwise any term
// qualifies a chunk.
func (s *Store) Search(ctx context.Context, terms []string, matchAll bool, limit int) ([]domain.ScoredChunk, error) {
	cleaned := sanitizeTerms(terms)
	if len(cleaned) == 0 || limit <= 0 {
		return nil, nil
	}

	operator := " | "
	if matchAll {
		operator = " & "
	}
	tsQuery := strings.Join(cleaned, operator)

	rows, err := s.db.QueryContext(ctx, `
SELECT c.document_id, c.chunk_index, c.content, d.title,
	COALESCE(string_agg(DISTINCT dc.category, ','), '') AS categories,
	ts_rank(c.content_tsv, to_tsquery('english', $1)) AS rank
FROM chunks c
JOIN documents d ON d.id = c.document_id
LEFT JOIN document_categories dc ON dc.document_id = c.document_id
WHERE d.status = $2
	AND c.content_tsv @@ to_tsquery('english', $1)
GROUP BY c.document_id, c.chunk_index, c.content, c.content_tsv, d.title
ORDER BY rank DESC
LIMIT $3
`, tsQuery, string(domain.StatusReady), limit)
	if err != nil {
		return nil, fmt.Errorf("text search query: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoredChunk
	for rows.Next() {
		var chunk domain.ScoredChunk
		var categoriesRaw string
		err := rows.Scan(
			&chunk.Ref.DocumentID, &chunk.Ref.ChunkIndex, &chunk.Content,
			&chunk.DocumentTitle, &categoriesRaw, &chunk.Score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		chunk.Categories = splitCategories(categoriesRaw)
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return out, nil
}

// sanitizeTerms keeps only tsquery-safe lexemes so user input cannot
// break the query syntax.
func sanitizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		var b strings.Builder
		for _, r := range strings.ToLower(strings.TrimSpace(term)) {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	return out
}

func splitCategories(raw string) []domain.CategoryTag {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]domain.CategoryTag, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, domain.CategoryTag(p))
		}
	}
	return out
}
