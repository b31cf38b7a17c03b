package api

import (
	"net/http"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/target"
)

type schemaResponse struct {
	Dialect string         `json:"dialect"`
	Tables  []target.Table `json:"tables"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema inspection is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	schema, err := deps.Schema.Snapshot(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_ERROR", "failed to read the database schema", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, schemaResponse{Dialect: schema.Dialect, Tables: schema.Tables})
}
