package sqlgen

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proplens/server/internal/pipeline/cache"
	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// Schema is the known-schema allowlist the validator checks generated
// statements against. Table and column names are stored lower-cased.
type Schema struct {
	Version string
	Tables  map[string][]string

	columns map[string]bool
}

func NewSchema(version string, tables map[string][]string) *Schema {
	normalized := make(map[string][]string, len(tables))
	columns := make(map[string]bool)
	for table, cols := range tables {
		lc := make([]string, 0, len(cols))
		for _, c := range cols {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			lc = append(lc, c)
			columns[c] = true
		}
		normalized[strings.ToLower(strings.TrimSpace(table))] = lc
	}
	return &Schema{Version: version, Tables: normalized, columns: columns}
}

func (s *Schema) HasTable(name string) bool {
	_, ok := s.Tables[strings.ToLower(name)]
	return ok
}

func (s *Schema) HasColumn(name string) bool {
	return s.columns[strings.ToLower(name)]
}

// Describe renders the allowlist for the planner prompt.
func (s *Schema) Describe() string {
	names := make([]string, 0, len(s.Tables))
	for t := range s.Tables {
		names = append(names, t)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, t := range names {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("public.%s columns: %s", t, strings.Join(s.Tables[t], ", ")))
	}
	return b.String()
}

// ParseAllowlist parses the static allowlist format
// "table:col|col;table:col|col" used as the introspection fallback.
func ParseAllowlist(s string) map[string][]string {
	tables := make(map[string][]string)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, cols, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		tables[strings.TrimSpace(name)] = strings.Split(cols, "|")
	}
	return tables
}

// LoadSchema builds the allowlist by introspecting information_schema for
// the configured tables, caching the result. When introspection fails it
// falls back to the statically configured allowlist.
func LoadSchema(ctx context.Context, pool *pgxpool.Pool, c *cache.Cache, cfg model.SchemaConfig, ttl time.Duration) (*Schema, error) {
	key := "tables=" + strings.Join(cfg.Tables, ",")

	var tables map[string][]string
	if c.GetJSON(ctx, cache.NSSchema, key, &tables) && len(tables) > 0 {
		return NewSchema(cfg.Version, tables), nil
	}

	tables, err := introspect(ctx, pool, cfg.Tables)
	if err != nil || len(tables) == 0 {
		if fallback := ParseAllowlist(cfg.Allowlist); len(fallback) > 0 {
			logx.Warn().Err(err).Msg("schema introspection failed, using static allowlist")
			return NewSchema(cfg.Version, fallback), nil
		}
		if err == nil {
			err = fmt.Errorf("no columns found for tables %v", cfg.Tables)
		}
		return nil, fmt.Errorf("load schema allowlist: %w", err)
	}

	c.SetJSON(ctx, cache.NSSchema, key, tables, ttl)
	return NewSchema(cfg.Version, tables), nil
}

func introspect(ctx context.Context, pool *pgxpool.Pool, tableNames []string) (map[string][]string, error) {
	if pool == nil {
		return nil, fmt.Errorf("no database pool")
	}

	rows, err := pool.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = ANY($1)
		ORDER BY table_name, ordinal_position`, tableNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string][]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, err
		}
		tables[table] = append(tables[table], column)
	}
	return tables, rows.Err()
}
