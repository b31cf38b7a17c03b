package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/chat"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

func handleListConversations(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.ChatStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat store is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	conversations, err := deps.ChatStore.ListConversations(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_STORE_ERROR", "failed to list conversations", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func handleCreateConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.ChatStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat store is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request createConversationRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid conversation request body", false, map[string]any{"details": err.Error()})
		return
	}

	title := strings.TrimSpace(request.Title)
	if title == "" {
		title = "New conversation"
	}
	conversation, err := deps.ChatStore.CreateConversation(r.Context(), title)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_STORE_ERROR", "failed to create conversation", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, conversation)
}

func handleGetConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.ChatStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat store is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	conversation, err := deps.ChatStore.GetConversation(r.Context(), r.PathValue("conversation"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_STORE_ERROR", "failed to load conversation", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func handleDeleteConversation(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.ChatStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat store is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	if err := deps.ChatStore.DeleteConversation(r.Context(), r.PathValue("conversation")); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_STORE_ERROR", "failed to delete conversation", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func handleListMessages(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.ChatStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "chat store is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleChatUser); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	messages, err := deps.ChatStore.ListMessages(r.Context(), r.PathValue("conversation"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "conversation does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CHAT_STORE_ERROR", "failed to list messages", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
