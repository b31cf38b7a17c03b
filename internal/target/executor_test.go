package target

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestExecutorWrapsQueryWithRowLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT id FROM users) AS q LIMIT 3")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))

	executor := NewExecutor(db, "postgres")
	result, err := executor.Execute(context.Background(), "SELECT id FROM users;", 2)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Truncated {
		t.Fatal("Truncated = true, want false")
	}
	if result.Columns[0] != "id" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExecutorReportsTruncation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"n"}).AddRow(1).AddRow(2).AddRow(3)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT n FROM t) AS q LIMIT 3")).WillReturnRows(rows)

	executor := NewExecutor(db, "postgres")
	result, err := executor.Execute(context.Background(), "SELECT n FROM t", 2)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if !result.Truncated {
		t.Fatal("Truncated = false, want true")
	}
}

func TestExecutorNormalizesByteSlices(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow([]byte("alice")))

	executor := NewExecutor(db, "postgres")
	result, err := executor.Execute(context.Background(), "SELECT name FROM users", 0)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != "alice" {
		t.Fatalf("value = %#v", result.Rows[0][0])
	}
}

func TestExecutorRejectsEmptySQL(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	executor := NewExecutor(db, "postgres")
	if _, err := executor.Execute(context.Background(), " ;; ", 10); err == nil {
		t.Fatal("expected error for empty sql")
	}
}
