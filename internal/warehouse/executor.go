// ABOUTME: Executor runs generated SQL and collects columns and rows
// ABOUTME: SQLExecutor works over any database/sql pool with a row cap and timeout

package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/cortex-chat/internal/agent"
	"github.com/2389/cortex-chat/internal/metrics"
)

// DefaultMaxRows caps result sets when no limit is configured.
const DefaultMaxRows = 1000

// ErrEmptyQuery is returned for blank statements.
var ErrEmptyQuery = errors.New("empty query")

// Executor runs one SQL statement.
type Executor interface {
	Query(ctx context.Context, query string) (*Result, error)
}

// Result is a fully materialized result set.
type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Elapsed   time.Duration
}

// ResultSet converts the result to the agent's table shape so it renders
// like a table returned by the agent itself.
func (r *Result) ResultSet() agent.ResultSet {
	cols := make([]agent.Column, len(r.Columns))
	for i, name := range r.Columns {
		cols[i] = agent.Column{Name: name}
	}
	return agent.ResultSet{
		Data: r.Rows,
		Meta: agent.ResultSetMeta{RowType: cols},
	}
}

// QueryError wraps a failed statement.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// SQLExecutorOptions configures an SQLExecutor.
type SQLExecutorOptions struct {
	MaxRows int
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// SQLExecutor implements Executor over a database/sql pool.
type SQLExecutor struct {
	db      *sql.DB
	maxRows int
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewSQLExecutor wraps db.
func NewSQLExecutor(db *sql.DB, opts SQLExecutorOptions) *SQLExecutor {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLExecutor{
		db:      db,
		maxRows: opts.MaxRows,
		timeout: opts.Timeout,
		metrics: opts.Metrics,
		logger:  logger.With("component", "warehouse"),
	}
}

// Query executes query and reads at most MaxRows rows.
func (e *SQLExecutor) Query(ctx context.Context, query string) (*Result, error) {
	res, err := e.query(ctx, query)
	e.metrics.WarehouseQuery(err)
	if err != nil {
		e.logger.Warn("query failed", "error", err)
		return nil, err
	}
	e.logger.Info("query completed",
		"columns", len(res.Columns),
		"rows", len(res.Rows),
		"truncated", res.Truncated,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (e *SQLExecutor) query(ctx context.Context, query string) (*Result, error) {
	stmt := NormalizeSQL(query)
	if stmt == "" {
		return nil, &QueryError{Query: query, Err: ErrEmptyQuery}
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &QueryError{Query: stmt, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Query: stmt, Err: fmt.Errorf("reading columns: %w", err)}
	}

	res := &Result{Columns: cols, Rows: make([][]any, 0)}
	for rows.Next() {
		if len(res.Rows) == e.maxRows {
			res.Truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Query: stmt, Err: fmt.Errorf("scanning row: %w", err)}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: stmt, Err: err}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// NormalizeSQL trims whitespace and trailing semicolons.
func NormalizeSQL(query string) string {
	stmt := strings.TrimSpace(query)
	for strings.HasSuffix(stmt, ";") {
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	}
	return stmt
}
