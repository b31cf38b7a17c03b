package target

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/querybuddy/querybuddy/internal/observability"
)

type Result struct {
	Columns   []string
	Rows      [][]any
	Duration  time.Duration
	Truncated bool
}

// Executor runs already-validated read-only SQL against the target
// database with a hard row limit.
type Executor struct {
	db      *sql.DB
	dialect string
}

func NewExecutor(db *sql.DB, dialect string) *Executor {
	return &Executor{db: db, dialect: dialect}
}

func (e *Executor) Execute(ctx context.Context, sqlText string, rowLimit int) (Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}

	// The limit wrapper fetches one extra row so truncation is detectable.
	wrapped := sqlText
	if rowLimit > 0 {
		wrapped = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit+1)
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, wrapped)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if rowLimit > 0 && len(resultRows) >= rowLimit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	elapsed := time.Since(start)
	observability.ObserveTargetQuery(elapsed)
	return Result{
		Columns:   columns,
		Rows:      resultRows,
		Duration:  elapsed,
		Truncated: truncated,
	}, nil
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
