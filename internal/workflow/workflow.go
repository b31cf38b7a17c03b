// Package workflow runs a natural-language question through schema
// analysis, SQL generation, validation, execution and answer formatting.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querybuddy/querybuddy/internal/chat"
	"github.com/querybuddy/querybuddy/internal/llm"
	"github.com/querybuddy/querybuddy/internal/observability"
	"github.com/querybuddy/querybuddy/internal/prompt"
	"github.com/querybuddy/querybuddy/internal/sqlguard"
	"github.com/querybuddy/querybuddy/internal/target"
)

// Answer statuses reported on the wire and in metrics.
const (
	StatusOK             = "ok"
	StatusNoTables       = "no_tables"
	StatusRejected       = "rejected"
	StatusExecutionError = "execution_error"
)

type SchemaProvider interface {
	Snapshot(ctx context.Context) (target.Schema, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string, rowLimit int) (target.Result, error)
}

type Config struct {
	Dialect         string
	ContextMessages int
	MaxResultRows   int
	PreviewRows     int
	SQLTemperature  float64
	ChatTemperature float64
	MaxTokens       int
}

type Engine struct {
	sqlLLM   llm.Client
	chatLLM  llm.Client
	schema   SchemaProvider
	executor QueryExecutor
	store    chat.Store
	logger   *slog.Logger
	cfg      Config
}

func NewEngine(sqlLLM, chatLLM llm.Client, schema SchemaProvider, executor QueryExecutor, store chat.Store, logger *slog.Logger, cfg Config) *Engine {
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = 5
	}
	if cfg.MaxResultRows <= 0 {
		cfg.MaxResultRows = 500
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 20
	}
	return &Engine{
		sqlLLM:   sqlLLM,
		chatLLM:  chatLLM,
		schema:   schema,
		executor: executor,
		store:    store,
		logger:   logger,
		cfg:      cfg,
	}
}

// Answer is the full outcome of one question.
type Answer struct {
	ConversationID string        `json:"conversation_id"`
	Question       string        `json:"question"`
	Status         string        `json:"status"`
	SQL            string        `json:"sql,omitempty"`
	Tables         []string      `json:"tables,omitempty"`
	Columns        []string      `json:"columns,omitempty"`
	Rows           [][]any       `json:"rows,omitempty"`
	RowCount       int           `json:"row_count"`
	Truncated      bool          `json:"truncated,omitempty"`
	Reply          string        `json:"reply"`
	Explanation    string        `json:"explanation,omitempty"`
	Elapsed        time.Duration `json:"-"`
}

// Translation is the outcome of generating SQL without executing it.
type Translation struct {
	SQL    string   `json:"sql"`
	Tables []string `json:"tables,omitempty"`
	Model  string   `json:"model"`
}

// Ask answers a question inside a conversation, creating the
// conversation when conversationID is empty.
func (e *Engine) Ask(ctx context.Context, conversationID, question string) (Answer, error) {
	observability.ObserveQuestion()
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("question is required")
	}

	conv, transcript, err := e.prepareConversation(ctx, conversationID, question)
	if err != nil {
		return Answer{}, err
	}

	answer := e.answer(ctx, conv.ID, question, transcript)
	answer.Elapsed = time.Since(start)

	if _, err := e.store.AppendMessage(ctx, chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleAssistant,
		Content:        answer.Reply,
		SQL:            answer.SQL,
		RowCount:       answer.RowCount,
	}); err != nil {
		return Answer{}, fmt.Errorf("record assistant message: %w", err)
	}

	observability.ObserveAnswer(answer.Status)
	e.logger.Info("question answered",
		"conversation_id", conv.ID,
		"status", answer.Status,
		"rows", answer.RowCount,
		"elapsed", answer.Elapsed,
	)
	return answer, nil
}

// Translate generates and validates SQL for a question without running
// it against the target.
func (e *Engine) Translate(ctx context.Context, conversationID, question string) (Translation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Translation{}, fmt.Errorf("question is required")
	}

	transcript := ""
	if conversationID != "" {
		recent, err := e.store.RecentMessages(ctx, conversationID, e.cfg.ContextMessages)
		if err != nil {
			return Translation{}, err
		}
		transcript = chat.RenderContext(recent, e.cfg.ContextMessages)
	}

	schema, err := e.snapshotSchema(ctx)
	if err != nil {
		return Translation{}, err
	}
	if len(schema.Tables) == 0 {
		return Translation{}, fmt.Errorf("the connected database has no tables")
	}

	tables, err := e.selectTables(ctx, schema, question, transcript)
	if err != nil {
		return Translation{}, err
	}
	if len(tables) == 0 {
		return Translation{}, fmt.Errorf("no tables in the schema match the question")
	}

	verdict, err := e.generateSQL(ctx, schema, tables, question, transcript)
	if err != nil {
		return Translation{}, err
	}
	return Translation{SQL: verdict.SQL, Tables: verdict.Tables, Model: e.sqlLLM.Model()}, nil
}

func (e *Engine) prepareConversation(ctx context.Context, conversationID, question string) (chat.Conversation, string, error) {
	var conv chat.Conversation
	var err error
	if conversationID == "" {
		conv, err = e.store.CreateConversation(ctx, chat.TitleFromQuestion(question))
		if err != nil {
			return chat.Conversation{}, "", fmt.Errorf("create conversation: %w", err)
		}
	} else {
		conv, err = e.store.GetConversation(ctx, conversationID)
		if err != nil {
			return chat.Conversation{}, "", err
		}
	}

	recent, err := e.store.RecentMessages(ctx, conv.ID, e.cfg.ContextMessages)
	if err != nil {
		return chat.Conversation{}, "", fmt.Errorf("load recent messages: %w", err)
	}
	transcript := chat.RenderContext(recent, e.cfg.ContextMessages)

	if _, err := e.store.AppendMessage(ctx, chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleUser,
		Content:        question,
	}); err != nil {
		return chat.Conversation{}, "", fmt.Errorf("record user message: %w", err)
	}
	return conv, transcript, nil
}

func (e *Engine) answer(ctx context.Context, conversationID, question, transcript string) Answer {
	answer := Answer{ConversationID: conversationID, Question: question}

	schema, err := e.snapshotSchema(ctx)
	if err != nil {
		answer.Status = StatusExecutionError
		answer.Reply = "I could not read the database schema. Please check the database connection and try again."
		e.logger.Error("schema snapshot failed", "error", err)
		return answer
	}
	if len(schema.Tables) == 0 {
		answer.Status = StatusNoTables
		answer.Reply = "The connected database has no tables, so there is nothing to query yet."
		return answer
	}

	tables, err := e.selectTables(ctx, schema, question, transcript)
	if err != nil {
		answer.Status = StatusExecutionError
		answer.Reply = "I could not reach the language model to analyze your question. Please try again."
		e.logger.Error("table selection failed", "error", err)
		return answer
	}
	if len(tables) == 0 {
		answer.Status = StatusNoTables
		answer.Reply = fmt.Sprintf(
			"I could not find any tables related to your question. The database contains: %s. Try asking about one of those.",
			strings.Join(schema.TableNames(), ", "))
		return answer
	}
	answer.Tables = tables

	verdict, err := e.generateSQL(ctx, schema, tables, question, transcript)
	if err != nil {
		var guardErr *sqlguard.GuardError
		if errors.As(err, &guardErr) {
			answer.Status = StatusRejected
			answer.Reply = fmt.Sprintf("I generated a query that is not allowed here (%s). Try rephrasing the question as something to look up rather than change.", guardErr.Detail)
			return answer
		}
		answer.Status = StatusExecutionError
		answer.Reply = "I could not generate SQL for your question. Please try rephrasing it."
		e.logger.Error("sql generation failed", "error", err)
		return answer
	}
	answer.SQL = verdict.SQL
	if len(verdict.Tables) > 0 {
		answer.Tables = verdict.Tables
	}

	result, err := e.executeSQL(ctx, verdict.SQL)
	if err != nil {
		answer.Status = StatusExecutionError
		answer.Reply = e.analyzeError(ctx, question, verdict.SQL, err, schema)
		return answer
	}
	answer.Columns = result.Columns
	answer.Rows = result.Rows
	answer.RowCount = len(result.Rows)
	answer.Truncated = result.Truncated

	answer.Reply = e.formatResults(ctx, question, verdict.SQL, result)
	answer.Explanation = e.explainQuery(ctx, question, verdict.SQL)
	answer.Status = StatusOK
	return answer
}

func (e *Engine) snapshotSchema(ctx context.Context) (target.Schema, error) {
	defer stageTimer("analyze_schema")()
	return e.schema.Snapshot(ctx)
}

func (e *Engine) selectTables(ctx context.Context, schema target.Schema, question, transcript string) ([]string, error) {
	defer stageTimer("select_tables")()

	p := prompt.SelectTables(schema.Describe(), question, transcript)
	completion, err := e.sqlLLM.Complete(ctx, llm.Request{
		System:      p.System,
		User:        p.User,
		Temperature: e.cfg.SQLTemperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("select tables: %w", err)
	}

	candidates, ok := prompt.ParseTableList(completion.Content)
	if !ok {
		return nil, nil
	}
	// The model occasionally lists tables that do not exist, keep only
	// real ones.
	tables := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if schema.HasTable(name) {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

func (e *Engine) generateSQL(ctx context.Context, schema target.Schema, tables []string, question, transcript string) (sqlguard.Verdict, error) {
	defer stageTimer("generate_sql")()

	p := prompt.GenerateSQL(e.cfg.Dialect, schema.Describe(), tables, question, transcript)
	completion, err := e.sqlLLM.Complete(ctx, llm.Request{
		System:      p.System,
		User:        p.User,
		Temperature: e.cfg.SQLTemperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		return sqlguard.Verdict{}, fmt.Errorf("generate sql: %w", err)
	}

	validateDone := stageTimer("validate_sql")
	verdict, err := sqlguard.Validate(completion.Content, schema.TableNames())
	validateDone()
	if err != nil {
		return sqlguard.Verdict{}, err
	}
	return verdict, nil
}

func (e *Engine) executeSQL(ctx context.Context, sqlText string) (target.Result, error) {
	defer stageTimer("execute_query")()
	return e.executor.Execute(ctx, sqlText, e.cfg.MaxResultRows)
}

func (e *Engine) formatResults(ctx context.Context, question, sqlText string, result target.Result) string {
	defer stageTimer("format_results")()

	preview := renderPreview(result, e.cfg.PreviewRows)
	p := prompt.FormatResults(question, sqlText, preview, len(result.Rows), result.Truncated)
	completion, err := e.chatLLM.Complete(ctx, llm.Request{System: p.System, User: p.User, Temperature: e.cfg.ChatTemperature, MaxTokens: e.cfg.MaxTokens})
	if err != nil || strings.TrimSpace(completion.Content) == "" {
		if err != nil {
			e.logger.Warn("result formatting fell back to plain output", "error", err)
		}
		return fallbackReply(result, preview)
	}
	return strings.TrimSpace(completion.Content)
}

func (e *Engine) explainQuery(ctx context.Context, question, sqlText string) string {
	defer stageTimer("explain_query")()

	p := prompt.ExplainQuery(question, sqlText, e.cfg.Dialect)
	completion, err := e.chatLLM.Complete(ctx, llm.Request{System: p.System, User: p.User, Temperature: e.cfg.ChatTemperature, MaxTokens: e.cfg.MaxTokens})
	if err != nil {
		e.logger.Warn("query explanation skipped", "error", err)
		return ""
	}
	return strings.TrimSpace(completion.Content)
}

func (e *Engine) analyzeError(ctx context.Context, question, sqlText string, execErr error, schema target.Schema) string {
	defer stageTimer("analyze_error")()

	p := prompt.AnalyzeError(question, sqlText, execErr.Error(), schema.Describe())
	completion, err := e.chatLLM.Complete(ctx, llm.Request{System: p.System, User: p.User, Temperature: e.cfg.ChatTemperature, MaxTokens: e.cfg.MaxTokens})
	if err != nil || strings.TrimSpace(completion.Content) == "" {
		return fmt.Sprintf("The query failed to run: %v. Try rephrasing your question.", execErr)
	}
	return strings.TrimSpace(completion.Content)
}

func stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		observability.ObserveWorkflowStage(stage, time.Since(start))
	}
}

func renderPreview(result target.Result, previewRows int) string {
	if len(result.Rows) == 0 {
		return "(no rows)"
	}
	rows := result.Rows
	if previewRows > 0 && len(rows) > previewRows {
		rows = rows[:previewRows]
	}

	var b strings.Builder
	b.WriteString(strings.Join(result.Columns, " | "))
	for _, row := range rows {
		b.WriteString("\n")
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = fmt.Sprintf("%v", value)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	if len(result.Rows) > len(rows) {
		b.WriteString(fmt.Sprintf("\n... and %d more rows", len(result.Rows)-len(rows)))
	}
	return b.String()
}

func fallbackReply(result target.Result, preview string) string {
	if len(result.Rows) == 0 {
		return "The query ran successfully but returned no rows."
	}
	suffix := ""
	if result.Truncated {
		suffix = " (truncated)"
	}
	return fmt.Sprintf("The query returned %d rows%s:\n%s", len(result.Rows), suffix, preview)
}
