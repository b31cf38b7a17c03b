// Package prompt assembles the model prompts for each stage of the
// question-answering workflow.
package prompt

import (
	"fmt"
	"strings"
)

// NoTablesFound is the sentinel the table-selection prompt instructs the
// model to return when no table can answer the question.
const NoTablesFound = "NO_TABLES_FOUND"

// Prompt pairs the system instruction with the user message for one
// chat completion.
type Prompt struct {
	System string
	User   string
}

var dialectNotes = map[string]string{
	"postgres": "PostgreSQL syntax. Use double quotes for identifiers when needed and standard SQL functions.",
	"mysql":    "MySQL syntax. Use backticks for identifiers when needed.",
	"sqlite":   "SQLite syntax. Keep to the SQLite function set, no stored procedures.",
	"duckdb":   "DuckDB syntax, which follows PostgreSQL closely.",
}

// DialectNote returns guidance for the given dialect, defaulting to
// standard SQL for anything unrecognized.
func DialectNote(dialect string) string {
	if note, ok := dialectNotes[strings.ToLower(dialect)]; ok {
		return note
	}
	return "Standard ANSI SQL syntax."
}

// SelectTables asks the model which schema tables are relevant to the
// question. The model answers with a comma-separated list of table names
// or the NoTablesFound sentinel.
func SelectTables(schemaText, question, conversationContext string) Prompt {
	system := "You are a database analyst. Given a database schema and a user question, " +
		"identify which tables are needed to answer the question. " +
		"Respond with a comma-separated list of table names only. " +
		fmt.Sprintf("If no tables are relevant, respond with exactly %s.", NoTablesFound)
	user := fmt.Sprintf("Database schema:\n%s\n%sQuestion:\n%s",
		schemaText, contextBlock(conversationContext), strings.TrimSpace(question))
	return Prompt{System: system, User: user}
}

// GenerateSQL asks the model for a single read-only query over the
// selected tables.
func GenerateSQL(dialect, schemaText string, tables []string, question, conversationContext string) Prompt {
	system := fmt.Sprintf("You convert natural language questions into a single SQL query. %s "+
		"Return ONLY SQL. No markdown, no explanation.", DialectNote(dialect))
	user := fmt.Sprintf(
		"Database schema:\n%s\nRelevant tables: %s\n%sQuestion:\n%s\n\nRules:\n"+
			"- Generate exactly one SELECT statement.\n"+
			"- Never use INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE, REPLACE, MERGE, GRANT or REVOKE.\n"+
			"- Use only the listed tables and their columns.\n"+
			"- Prefer explicit column names over SELECT *.",
		schemaText,
		strings.Join(tables, ", "),
		contextBlock(conversationContext),
		strings.TrimSpace(question),
	)
	return Prompt{System: system, User: user}
}

// FormatResults asks the model for a short natural-language answer built
// from the query output.
func FormatResults(question, sqlText, resultText string, rowCount int, truncated bool) Prompt {
	system := "You are a helpful data analyst. Summarize query results for a non-technical reader. " +
		"Be concise, mention concrete numbers, and never invent values that are not in the results."
	note := ""
	if truncated {
		note = "\nNote: the result set was truncated, mention that more rows exist."
	}
	user := fmt.Sprintf("Question:\n%s\n\nSQL executed:\n%s\n\nResults (%d rows):\n%s%s",
		strings.TrimSpace(question), sqlText, rowCount, resultText, note)
	return Prompt{System: system, User: user}
}

// ExplainQuery asks the model to describe what the generated query does.
func ExplainQuery(question, sqlText, dialect string) Prompt {
	system := "You explain SQL queries to non-technical readers in two or three plain sentences. " +
		"Describe what the query retrieves and how, without SQL jargon."
	user := fmt.Sprintf("The user asked:\n%s\n\nThis %s query answers it:\n%s",
		strings.TrimSpace(question), dialect, sqlText)
	return Prompt{System: system, User: user}
}

// AnalyzeError asks the model to turn a database error into actionable
// guidance for the user.
func AnalyzeError(question, sqlText, errorMessage, schemaText string) Prompt {
	system := "You are a database expert. A generated SQL query failed. " +
		"Explain in plain language what went wrong and suggest how the user could rephrase the question. " +
		"Do not include SQL in the answer."
	user := fmt.Sprintf("Question:\n%s\n\nFailed SQL:\n%s\n\nDatabase error:\n%s\n\nSchema:\n%s",
		strings.TrimSpace(question), sqlText, errorMessage, schemaText)
	return Prompt{System: system, User: user}
}

// ParseTableList splits a table-selection response into table names.
// It returns ok=false when the model signalled NoTablesFound.
func ParseTableList(response string) ([]string, bool) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" || strings.Contains(strings.ToUpper(trimmed), NoTablesFound) {
		return nil, false
	}
	parts := strings.Split(trimmed, ",")
	tables := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.Trim(strings.TrimSpace(part), "`\"'")
		if name != "" {
			tables = append(tables, name)
		}
	}
	if len(tables) == 0 {
		return nil, false
	}
	return tables, true
}

func contextBlock(conversationContext string) string {
	trimmed := strings.TrimSpace(conversationContext)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("Recent conversation:\n%s\n", trimmed)
}
