package sqlgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	errx "github.com/proplens/server/internal/core/error"
	"github.com/proplens/server/internal/pipeline/model"
	logx "github.com/proplens/server/pkg/logger"
)

// Executor runs validated statements against the database with a bounded
// timeout, truncating oversized result sets. Only statements that passed the
// Validator may reach it.
type Executor struct {
	pool     *pgxpool.Pool
	timeout  time.Duration
	rowLimit int
}

func NewExecutor(pool *pgxpool.Pool, timeout time.Duration, rowLimit int) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if rowLimit <= 0 {
		rowLimit = 200
	}
	return &Executor{pool: pool, timeout: timeout, rowLimit: rowLimit}
}

func (e *Executor) Run(ctx context.Context, stmt string) (*model.ResultSet, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.pool.Query(runCtx, stmt)
	if err != nil {
		return nil, errx.New(errx.KindSQLExecution, errx.StageExecute, "query execution failed", err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	rs := &model.ResultSet{Columns: make([]string, 0, len(fds))}
	for _, fd := range fds {
		rs.Columns = append(rs.Columns, string(fd.Name))
	}

	for rows.Next() {
		if len(rs.Rows) >= e.rowLimit {
			rs.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, errx.New(errx.KindSQLExecution, errx.StageExecute, "failed to read a result row", err)
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil && !rs.Truncated {
		return nil, errx.New(errx.KindSQLExecution, errx.StageExecute, "query execution failed", err)
	}

	logx.Debug().Int("rows", len(rs.Rows)).Bool("truncated", rs.Truncated).Msg("sql executed")
	return rs, nil
}
