package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proplens/server/internal/pipeline/model"
)

// Store is the document/vector store collaborator: nearest-neighbor search
// over schema and field descriptions.
type Store interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]model.Snippet, error)
}

// PgVectorStore runs cosine similarity search against a Postgres table with
// a pgvector embedding column.
type PgVectorStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPgVectorStore(pool *pgxpool.Pool, table string) *PgVectorStore {
	if table == "" {
		table = "schema_docs"
	}
	return &PgVectorStore{pool: pool, table: table}
}

func (s *PgVectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]model.Snippet, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		`SELECT content, 1 - (embedding <=> $1::vector) AS score FROM %s ORDER BY embedding <=> $1::vector LIMIT $2`,
		s.table,
	)
	rows, err := s.pool.Query(ctx, query, VectorLiteral(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var snippets []model.Snippet
	for rows.Next() {
		var sn model.Snippet
		if err := rows.Scan(&sn.Content, &sn.Score); err != nil {
			return nil, fmt.Errorf("vector search scan: %w", err)
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search rows: %w", err)
	}
	return snippets, nil
}

// VectorLiteral renders an embedding in pgvector's text input format.
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

var _ Store = (*PgVectorStore)(nil)
