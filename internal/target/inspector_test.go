package target

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestInspectorSnapshotPostgres(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT table_name FROM information_schema\.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("users"))
	mock.ExpectQuery(`SELECT column_name, data_type FROM information_schema\.columns`).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("id", "integer").
			AddRow("name", "text"))
	mock.ExpectQuery(`SELECT \* FROM "users" LIMIT 2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), []byte("alice")))

	inspector := NewInspector(db, "postgres", 2)
	schema, err := inspector.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(schema.Tables) != 1 {
		t.Fatalf("tables = %d", len(schema.Tables))
	}
	table := schema.Tables[0]
	if table.Name != "users" {
		t.Fatalf("table name = %q", table.Name)
	}
	if len(table.Columns) != 2 || table.Columns[1].Name != "name" {
		t.Fatalf("columns = %#v", table.Columns)
	}
	if len(table.SampleRows) != 1 || table.SampleRows[0][1] != "alice" {
		t.Fatalf("sample rows = %#v", table.SampleRows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInspectorSnapshotSkipsFailedSamples(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT table_name FROM information_schema\.tables`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("secrets"))
	mock.ExpectQuery(`SELECT column_name, data_type FROM information_schema\.columns`).
		WithArgs("secrets").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).AddRow("id", "integer"))
	mock.ExpectQuery(`SELECT \* FROM "secrets" LIMIT 2`).
		WillReturnError(context.DeadlineExceeded)

	inspector := NewInspector(db, "postgres", 2)
	schema, err := inspector.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(schema.Tables) != 1 {
		t.Fatalf("tables = %d", len(schema.Tables))
	}
	if len(schema.Tables[0].SampleRows) != 0 {
		t.Fatalf("sample rows = %#v", schema.Tables[0].SampleRows)
	}
}

func TestInspectorRejectsUnknownDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	inspector := NewInspector(db, "oracle", 0)
	if _, err := inspector.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
}
