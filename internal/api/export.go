package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/export"
	"github.com/querybuddy/querybuddy/internal/sqlguard"
)

type exportRequest struct {
	ConversationID string `json:"conversation_id"`
	SQL            string `json:"sql"`
	Format         string `json:"format"`
	RowLimit       int    `json:"row_limit"`
}

type exportResponse struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	RowCount int    `json:"row_count"`
	Format   string `json:"format"`
}

// handleExport re-runs a validated query and uploads the full result to
// the object store.
func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil || deps.Executor == nil || deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "export dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request exportRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
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
	if rowLimit <= 0 {
		rowLimit = deps.MaxResultRows
	}
	result, err := deps.Executor.Execute(r.Context(), verdict.SQL, rowLimit)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	info, err := deps.Exporter.Export(r.Context(), export.Input{
		ConversationID: strings.TrimSpace(request.ConversationID),
		SQL:            verdict.SQL,
		Columns:        result.Columns,
		Rows:           result.Rows,
		Format:         request.Format,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to store the export", true, map[string]any{"details": err.Error()})
		return
	}

	format := strings.ToLower(strings.TrimSpace(request.Format))
	if format == "" {
		format = export.FormatCSV
	}
	writeJSON(w, http.StatusOK, exportResponse{
		Key:      info.Key,
		Size:     info.Size,
		RowCount: len(result.Rows),
		Format:   format,
	})
}
