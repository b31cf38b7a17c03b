package target

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Inspector reads table, column and sample-row information from the target
// database. Introspection queries differ per dialect; results are
// normalized into a Schema snapshot.
type Inspector struct {
	db         *sql.DB
	dialect    string
	sampleRows int
}

func NewInspector(db *sql.DB, dialect string, sampleRows int) *Inspector {
	if sampleRows < 0 {
		sampleRows = 0
	}
	return &Inspector{db: db, dialect: dialect, sampleRows: sampleRows}
}

func (i *Inspector) HealthCheck(ctx context.Context) error {
	if err := i.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping target db: %w", err)
	}
	return nil
}

func (i *Inspector) Snapshot(ctx context.Context) (Schema, error) {
	names, err := i.listTables(ctx)
	if err != nil {
		return Schema{}, err
	}

	schema := Schema{Dialect: i.dialect, Tables: make([]Table, 0, len(names))}
	for _, name := range names {
		columns, err := i.listColumns(ctx, name)
		if err != nil {
			return Schema{}, err
		}
		table := Table{Name: name, Columns: columns}
		if i.sampleRows > 0 {
			// Sampling is best effort: a view or permission error on one
			// table must not break schema analysis.
			if rows, err := i.sample(ctx, name); err == nil {
				table.SampleRows = rows
			}
		}
		schema.Tables = append(schema.Tables, table)
	}
	return schema, nil
}

func (i *Inspector) listTables(ctx context.Context) ([]string, error) {
	var query string
	switch i.dialect {
	case "postgres":
		query = `
SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`
	case "mysql":
		query = `
SELECT table_name FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
ORDER BY table_name`
	case "sqlite":
		query = `
SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`
	case "duckdb":
		query = `
SELECT table_name FROM information_schema.tables
WHERE table_schema = 'main'
ORDER BY table_name`
	default:
		return nil, fmt.Errorf("unsupported target dialect: %q", i.dialect)
	}

	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	return names, nil
}

func (i *Inspector) listColumns(ctx context.Context, table string) ([]Column, error) {
	var query string
	switch i.dialect {
	case "postgres", "duckdb":
		query = `
SELECT column_name, data_type FROM information_schema.columns
WHERE table_name = $1
ORDER BY ordinal_position`
	case "mysql":
		query = `
SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`
	case "sqlite":
		query = `SELECT name, type FROM pragma_table_info(?)`
	default:
		return nil, fmt.Errorf("unsupported target dialect: %q", i.dialect)
	}

	rows, err := i.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("list columns for %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]Column, 0)
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, fmt.Errorf("scan column for %q: %w", table, err)
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns for %q: %w", table, err)
	}
	return columns, nil
}

func (i *Inspector) sample(ctx context.Context, table string) ([][]any, error) {
	query := "SELECT * FROM " + QuoteIdent(i.dialect, table) + " LIMIT " + strconv.Itoa(i.sampleRows)
	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sample columns for %q: %w", table, err)
	}

	sampled := make([][]any, 0, i.sampleRows)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for idx := range values {
			scanTargets[idx] = &values[idx]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan sample row for %q: %w", table, err)
		}
		sampled = append(sampled, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample rows for %q: %w", table, err)
	}
	return sampled, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
