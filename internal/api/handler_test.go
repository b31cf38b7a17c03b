package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/chat"
	"github.com/querybuddy/querybuddy/internal/chat/memory"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/querybuddy/querybuddy/internal/export"
	"github.com/querybuddy/querybuddy/internal/storage"
	"github.com/querybuddy/querybuddy/internal/target"
	"github.com/querybuddy/querybuddy/internal/workflow"
)

type fakeEngine struct {
	answer      workflow.Answer
	translation workflow.Translation
	err         error
}

func (f *fakeEngine) Ask(ctx context.Context, conversationID, question string) (workflow.Answer, error) {
	if f.err != nil {
		return workflow.Answer{}, f.err
	}
	return f.answer, nil
}

func (f *fakeEngine) Translate(ctx context.Context, conversationID, question string) (workflow.Translation, error) {
	if f.err != nil {
		return workflow.Translation{}, f.err
	}
	return f.translation, nil
}

type fakeSchema struct {
	schema target.Schema
	err    error
}

func (f *fakeSchema) Snapshot(context.Context) (target.Schema, error) {
	return f.schema, f.err
}

type fakeExecutor struct {
	result   target.Result
	err      error
	lastSQL  string
	rowLimit int
}

func (f *fakeExecutor) Execute(_ context.Context, sqlText string, rowLimit int) (target.Result, error) {
	f.lastSQL = sqlText
	f.rowLimit = rowLimit
	if f.err != nil {
		return target.Result{}, f.err
	}
	return f.result, nil
}

type fakeExporter struct {
	lastInput export.Input
	err       error
}

func (f *fakeExporter) Export(_ context.Context, in export.Input) (storage.ObjectInfo, error) {
	f.lastInput = in
	if f.err != nil {
		return storage.ObjectInfo{}, f.err
	}
	return storage.ObjectInfo{Key: "exports/adhoc/archive.csv", Size: 42}, nil
}

func testConfig() config.Config {
	return config.Config{
		Profile: config.ProfileTest,
		Service: config.ServiceConfig{Name: "querybuddy"},
	}
}

func testSchema() target.Schema {
	return target.Schema{
		Dialect: "sqlite",
		Tables:  []target.Table{{Name: "users", Columns: []target.Column{{Name: "id", Type: "INTEGER"}}}},
	}
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body map[string]any
	decodeBody(t, recorder, &body)
	if body["service"] != "querybuddy" {
		t.Fatalf("body = %v", body)
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Readiness: func(context.Context) error { return errors.New("chat store unreachable") },
	})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body map[string]any
	decodeBody(t, recorder, &body)
	if body["error_code"] != "NOT_READY" {
		t.Fatalf("body = %v", body)
	}
}

func TestAskEndpoint(t *testing.T) {
	engine := &fakeEngine{answer: workflow.Answer{
		ConversationID: "conv-1",
		Status:         workflow.StatusOK,
		Reply:          "There are 42 users.",
		SQL:            "SELECT count(*) FROM users",
		RowCount:       1,
	}}
	handler := NewHandler(testConfig(), Dependencies{Engine: engine})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"how many users?"}`))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	var body askResponse
	decodeBody(t, recorder, &body)
	if body.ConversationID != "conv-1" || body.Reply != "There are 42 users." {
		t.Fatalf("body = %#v", body)
	}
}

func TestAskEndpointRequiresQuestion(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Engine: &fakeEngine{}})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"  "}`)))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestAskEndpointUnknownConversation(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Engine: &fakeEngine{err: chat.ErrNotFound}})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"conversation_id":"x","question":"q"}`)))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestTranslateEndpoint(t *testing.T) {
	engine := &fakeEngine{translation: workflow.Translation{SQL: "SELECT id FROM users", Model: "sql-model"}}
	handler := NewHandler(testConfig(), Dependencies{Engine: engine})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/translate", strings.NewReader(`{"question":"user ids"}`)))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	var body translateResponse
	decodeBody(t, recorder, &body)
	if body.SQL != "SELECT id FROM users" || body.Model != "sql-model" {
		t.Fatalf("body = %#v", body)
	}
}

func TestQueryEndpointRejectsWriteStatement(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Schema:   &fakeSchema{schema: testSchema()},
		Executor: &fakeExecutor{},
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql":"DELETE FROM users"}`)))

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body map[string]any
	decodeBody(t, recorder, &body)
	if body["error_code"] != "SQL_NOT_ALLOWED" {
		t.Fatalf("body = %v", body)
	}
}

func TestQueryEndpointExecutesGuardedSQL(t *testing.T) {
	executor := &fakeExecutor{result: target.Result{Columns: []string{"id"}, Rows: [][]any{{float64(1)}}}}
	handler := NewHandler(testConfig(), Dependencies{
		Schema:        &fakeSchema{schema: testSchema()},
		Executor:      executor,
		MaxResultRows: 100,
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql":"SELECT id FROM users;"}`)))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	if executor.lastSQL != "SELECT id FROM users" {
		t.Fatalf("executed sql = %q", executor.lastSQL)
	}
	if executor.rowLimit != 100 {
		t.Fatalf("row limit = %d", executor.rowLimit)
	}
}

func TestQueryEndpointRejectsUnknownTable(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{
		Schema:   &fakeSchema{schema: testSchema()},
		Executor: &fakeExecutor{},
	})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"sql":"SELECT * FROM payments"}`)))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	handler := NewHandler(testConfig(), Dependencies{Schema: &fakeSchema{schema: testSchema()}})
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var body schemaResponse
	decodeBody(t, recorder, &body)
	if body.Dialect != "sqlite" || len(body.Tables) != 1 {
		t.Fatalf("body = %#v", body)
	}
}

func TestConversationEndpoints(t *testing.T) {
	store := memory.NewStore()
	handler := NewHandler(testConfig(), Dependencies{ChatStore: store})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/conversations", strings.NewReader(`{"title":"metrics"}`)))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create status = %d", recorder.Code)
	}
	var created chat.Conversation
	decodeBody(t, recorder, &created)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/conversations", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("list status = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/conversations/"+created.ID+"/messages", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("messages status = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodDelete, "/v1/conversations/"+created.ID, nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete status = %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/conversations/"+created.ID, nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("get-after-delete status = %d", recorder.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	exporter := &fakeExporter{}
	executor := &fakeExecutor{result: target.Result{Columns: []string{"id"}, Rows: [][]any{{float64(1)}}}}
	handler := NewHandler(testConfig(), Dependencies{
		Schema:   &fakeSchema{schema: testSchema()},
		Executor: executor,
		Exporter: exporter,
	})

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/export", strings.NewReader(`{"sql":"SELECT id FROM users","format":"parquet"}`)))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", recorder.Code, recorder.Body.String())
	}
	if exporter.lastInput.Format != "parquet" || len(exporter.lastInput.Columns) != 1 {
		t.Fatalf("export input = %#v", exporter.lastInput)
	}
}

func TestAuthRequiredProtectsEndpoints(t *testing.T) {
	validator, err := auth.NewStaticAPIKeyValidator("user-key:alice:chat_user, admin-key:ops:chat_user|admin")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}

	cfg := testConfig()
	cfg.Auth.Required = true
	exporter := &fakeExporter{}
	handler := NewHandler(cfg, Dependencies{
		Engine:         &fakeEngine{answer: workflow.Answer{Status: workflow.StatusOK}},
		Schema:         &fakeSchema{schema: testSchema()},
		Executor:       &fakeExecutor{result: target.Result{Columns: []string{"id"}}},
		Exporter:       exporter,
		AuthMiddleware: auth.Middleware(nil, validator),
	})

	// No key.
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`)))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("no-key status = %d", recorder.Code)
	}

	// Chat user can ask.
	recorder = httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"q"}`))
	request.Header.Set("X-API-Key", "user-key")
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("chat-user ask status = %d", recorder.Code)
	}

	// Chat user cannot export.
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodPost, "/v1/export", strings.NewReader(`{"sql":"SELECT id FROM users"}`))
	request.Header.Set("X-API-Key", "user-key")
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("chat-user export status = %d", recorder.Code)
	}

	// Admin can export.
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodPost, "/v1/export", strings.NewReader(`{"sql":"SELECT id FROM users"}`))
	request.Header.Set("X-API-Key", "admin-key")
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("admin export status = %d body = %s", recorder.Code, recorder.Body.String())
	}

	// Health stays open.
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d", recorder.Code)
	}
}
