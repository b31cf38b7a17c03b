// Package sqlguard enforces the read-only query policy on generated and
// caller-supplied SQL before anything reaches the target database.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/querybuddy/querybuddy/internal/observability"
)

type Reason string

const (
	ReasonEmpty              Reason = "empty"
	ReasonNotSelect          Reason = "not_select"
	ReasonProhibitedKeyword  Reason = "prohibited_keyword"
	ReasonMultipleStatements Reason = "multiple_statements"
	ReasonUnknownTable       Reason = "unknown_table"
)

type GuardError struct {
	Reason Reason
	Detail string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("sql rejected (%s): %s", e.Reason, e.Detail)
}

// Statement kinds that must never reach the target, regardless of how the
// model phrased them.
var prohibitedKeywords = map[string]struct{}{
	"INSERT":   {},
	"UPDATE":   {},
	"DELETE":   {},
	"DROP":     {},
	"ALTER":    {},
	"CREATE":   {},
	"TRUNCATE": {},
	"REPLACE":  {},
	"MERGE":    {},
	"GRANT":    {},
	"REVOKE":   {},
}

var (
	fenceOpenPattern = regexp.MustCompile("(?i)```sql\n?")
	fencePattern     = regexp.MustCompile("```\n?")
	sqlLabelPattern  = regexp.MustCompile(`(?i)^sql\s+`)
	wordPattern      = regexp.MustCompile(`[A-Za-z_]+`)
)

// Verdict is the outcome of a successful validation. Tables is only
// populated when the statement parsed cleanly.
type Verdict struct {
	SQL    string
	Tables []string
	Parsed bool
}

// Clean strips markdown fences, a leading "sql" label and trailing
// semicolons from model output.
func Clean(raw string) string {
	cleaned := fenceOpenPattern.ReplaceAllString(raw, "")
	cleaned = fencePattern.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = sqlLabelPattern.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	for strings.HasSuffix(cleaned, ";") {
		cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, ";"))
	}
	return cleaned
}

// Validate cleans raw SQL and checks it against the read-only policy.
// When knownTables is non-empty and the statement parses, every referenced
// table must be present in the schema. Dialect-specific syntax the parser
// cannot handle falls back to the keyword policy alone.
func Validate(raw string, knownTables []string) (Verdict, error) {
	verdict, err := validate(raw, knownTables)
	if err != nil {
		var guardErr *GuardError
		if ok := asGuardError(err, &guardErr); ok {
			observability.ObserveSQLRejected(string(guardErr.Reason))
		}
		return Verdict{}, err
	}
	return verdict, nil
}

func validate(raw string, knownTables []string) (Verdict, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return Verdict{}, &GuardError{Reason: ReasonEmpty, Detail: "no SQL statement found"}
	}

	bare := stripStringLiterals(cleaned)
	if strings.Contains(bare, ";") {
		return Verdict{}, &GuardError{Reason: ReasonMultipleStatements, Detail: "only a single statement is allowed"}
	}

	first := firstKeyword(bare)
	if first != "SELECT" && first != "WITH" {
		return Verdict{}, &GuardError{Reason: ReasonNotSelect, Detail: fmt.Sprintf("statement starts with %q, only SELECT/WITH are allowed", first)}
	}

	for _, word := range wordPattern.FindAllString(strings.ToUpper(bare), -1) {
		if _, prohibited := prohibitedKeywords[word]; prohibited {
			return Verdict{}, &GuardError{Reason: ReasonProhibitedKeyword, Detail: fmt.Sprintf("prohibited SQL operation: %s", word)}
		}
	}

	stmt, err := sqlparser.Parse(cleaned)
	if err != nil {
		// Dialect syntax the parser does not understand. The keyword
		// policy above still applies.
		return Verdict{SQL: cleaned, Parsed: false}, nil
	}

	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
	default:
		return Verdict{}, &GuardError{Reason: ReasonNotSelect, Detail: "statement is not a SELECT"}
	}

	tables := extractTables(stmt)
	if len(knownTables) > 0 {
		for _, table := range tables {
			if !containsFold(knownTables, table) {
				return Verdict{}, &GuardError{Reason: ReasonUnknownTable, Detail: fmt.Sprintf("table %q does not exist in the schema", table)}
			}
		}
	}

	return Verdict{SQL: cleaned, Tables: tables, Parsed: true}, nil
}

func extractTables(stmt sqlparser.Statement) []string {
	seen := map[string]struct{}{}
	tables := make([]string, 0, 4)
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		aliased, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}
		name, ok := aliased.Expr.(sqlparser.TableName)
		if !ok {
			return true, nil
		}
		table := name.Name.String()
		if table == "" {
			return true, nil
		}
		if _, dup := seen[strings.ToLower(table)]; dup {
			return true, nil
		}
		seen[strings.ToLower(table)] = struct{}{}
		tables = append(tables, table)
		return true, nil
	}, stmt)
	return tables
}

func firstKeyword(sqlText string) string {
	word := wordPattern.FindString(sqlText)
	return strings.ToUpper(word)
}

// stripStringLiterals blanks out single- and double-quoted segments so the
// keyword scan cannot trip on data values.
func stripStringLiterals(sqlText string) string {
	var b strings.Builder
	b.Grow(len(sqlText))
	var quote byte
	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
				b.WriteByte(' ')
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func containsFold(haystack []string, needle string) bool {
	for _, candidate := range haystack {
		if strings.EqualFold(candidate, needle) {
			return true
		}
	}
	return false
}

func asGuardError(err error, dst **GuardError) bool {
	guardErr, ok := err.(*GuardError)
	if !ok {
		return false
	}
	*dst = guardErr
	return true
}
