package prompt

import (
	"strings"
	"testing"
)

func TestSelectTablesIncludesSchemaAndSentinel(t *testing.T) {
	p := SelectTables("Table users:\n  id INTEGER", "how many users?", "")
	if !strings.Contains(p.System, NoTablesFound) {
		t.Fatalf("system prompt missing sentinel:\n%s", p.System)
	}
	if !strings.Contains(p.User, "Table users:") {
		t.Fatalf("user prompt missing schema:\n%s", p.User)
	}
	if strings.Contains(p.User, "Recent conversation:") {
		t.Fatal("empty context rendered a conversation block")
	}
}

func TestGenerateSQLCarriesContextAndRules(t *testing.T) {
	p := GenerateSQL("postgres", "schema text", []string{"users", "orders"}, "top customers?", "User: hi\nAssistant: hello")
	for _, want := range []string{"Relevant tables: users, orders", "Recent conversation:", "User: hi", "SELECT statement", "PostgreSQL"} {
		if !strings.Contains(p.User, want) && !strings.Contains(p.System, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestFormatResultsMentionsTruncation(t *testing.T) {
	p := FormatResults("q", "SELECT 1", "1", 1, true)
	if !strings.Contains(p.User, "truncated") {
		t.Fatalf("truncation note missing:\n%s", p.User)
	}
	p = FormatResults("q", "SELECT 1", "1", 1, false)
	if strings.Contains(p.User, "truncated") {
		t.Fatal("unexpected truncation note")
	}
}

func TestDialectNoteFallsBack(t *testing.T) {
	if got := DialectNote("oracle"); !strings.Contains(got, "ANSI") {
		t.Fatalf("DialectNote(oracle) = %q", got)
	}
	if got := DialectNote("MySQL"); !strings.Contains(got, "backticks") {
		t.Fatalf("DialectNote(MySQL) = %q", got)
	}
}

func TestParseTableList(t *testing.T) {
	tables, ok := ParseTableList(" users, `orders` , \"invoices\"")
	if !ok {
		t.Fatal("ok = false")
	}
	if len(tables) != 3 || tables[1] != "orders" || tables[2] != "invoices" {
		t.Fatalf("tables = %v", tables)
	}
}

func TestParseTableListSentinel(t *testing.T) {
	for _, response := range []string{"NO_TABLES_FOUND", "", "  ", "no_tables_found", ", ,"} {
		if _, ok := ParseTableList(response); ok {
			t.Fatalf("ParseTableList(%q) ok = true", response)
		}
	}
}
