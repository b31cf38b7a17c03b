package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/sqlguard"
)

type queryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type queryResponse struct {
	Columns   []string       `json:"columns"`
	Rows      [][]any        `json:"rows"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

// handleQuery runs caller-written SQL through the same guard the
// generated queries pass.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Executor == nil || deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	schema, err := deps.Schema.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_ERROR", "failed to read the database schema", true, map[string]any{"details": err.Error()})
		return
	}

	verdict, err := sqlguard.Validate(request.SQL, schema.TableNames())
	if err != nil {
		var guardErr *sqlguard.GuardError
		if errors.As(err, &guardErr) {
			writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", guardErr.Detail, false, map[string]any{"reason": string(guardErr.Reason)})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", err.Error(), false, nil)
		return
	}

	rowLimit := request.RowLimit
	if rowLimit <= 0 || (deps.MaxResultRows > 0 && rowLimit > deps.MaxResultRows) {
		rowLimit = deps.MaxResultRows
	}

	result, err := deps.Executor.Execute(r.Context(), verdict.SQL, rowLimit)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
			"row_count":   len(result.Rows),
		},
	})
}
