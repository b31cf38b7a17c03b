package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/chat"
)

type askRequest struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`
}

type askResponse struct {
	ConversationID string         `json:"conversation_id"`
	Status         string         `json:"status"`
	Reply          string         `json:"reply"`
	SQL            string         `json:"sql,omitempty"`
	Explanation    string         `json:"explanation,omitempty"`
	Columns        []string       `json:"columns,omitempty"`
	Rows           [][]any        `json:"rows,omitempty"`
	RowCount       int            `json:"row_count"`
	Truncated      bool           `json:"truncated,omitempty"`
	Stats          map[string]any `json:"stats"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Engine == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	answer, err := deps.Engine.Ask(r.Context(), strings.TrimSpace(request.ConversationID), request.Question)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", "failed to answer the question", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		ConversationID: answer.ConversationID,
		Status:         answer.Status,
		Reply:          answer.Reply,
		SQL:            answer.SQL,
		Explanation:    answer.Explanation,
		Columns:        answer.Columns,
		Rows:           answer.Rows,
		RowCount:       answer.RowCount,
		Truncated:      answer.Truncated,
		Stats: map[string]any{
			"duration_ms": answer.Elapsed.Milliseconds(),
			"tables":      answer.Tables,
		},
	})
}
