package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/chat"
	"github.com/querybuddy/querybuddy/internal/sqlguard"
)

type translateRequest struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
}

type translateResponse struct {
	SQL    string   `json:"sql"`
	Tables []string `json:"tables,omitempty"`
	Model  string   `json:"model"`
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "translation is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request translateRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translate request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	translation, err := deps.Engine.Translate(r.Context(), strings.TrimSpace(request.ConversationID), request.Question)
	if err != nil {
		var guardErr *sqlguard.GuardError
		switch {
		case errors.Is(err, chat.ErrNotFound):
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
		case errors.As(err, &guardErr):
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "SQL_NOT_ALLOWED", guardErr.Detail, false, map[string]any{"reason": string(guardErr.Reason)})
		default:
			writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate the question", true, map[string]any{"details": err.Error()})
		}
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{
		SQL:    translation.SQL,
		Tables: translation.Tables,
		Model:  translation.Model,
	})
}
