// Package api exposes the HTTP surface: health, the question-answering
// endpoints, conversation management, direct queries and exports.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/chat"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/querybuddy/querybuddy/internal/export"
	"github.com/querybuddy/querybuddy/internal/observability"
	"github.com/querybuddy/querybuddy/internal/storage"
	"github.com/querybuddy/querybuddy/internal/target"
	"github.com/querybuddy/querybuddy/internal/workflow"
)

type ReadinessCheck func(ctx context.Context) error

type Engine interface {
	Ask(ctx context.Context, conversationID, question string) (workflow.Answer, error)
	Translate(ctx context.Context, conversationID, question string) (workflow.Translation, error)
}

type SchemaProvider interface {
	Snapshot(ctx context.Context) (target.Schema, error)
}

type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string, rowLimit int) (target.Result, error)
}

type ResultExporter interface {
	Export(ctx context.Context, in export.Input) (storage.ObjectInfo, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Engine            Engine
	Schema            SchemaProvider
	Executor          QueryExecutor
	ChatStore         chat.Store
	Exporter          ResultExporter
	MaxResultRows     int
	UI                http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("POST /v1/translate", func(w http.ResponseWriter, r *http.Request) {
		handleTranslate(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("GET /v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		handleListConversations(deps, w, r)
	})
	protected.HandleFunc("POST /v1/conversations", func(w http.ResponseWriter, r *http.Request) {
		handleCreateConversation(deps, w, r)
	})
	protected.HandleFunc("GET /v1/conversations/{conversation}", func(w http.ResponseWriter, r *http.Request) {
		handleGetConversation(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/conversations/{conversation}", func(w http.ResponseWriter, r *http.Request) {
		handleDeleteConversation(deps, w, r)
	})
	protected.HandleFunc("GET /v1/conversations/{conversation}/messages", func(w http.ResponseWriter, r *http.Request) {
		handleListMessages(deps, w, r)
	})
	protected.HandleFunc("POST /v1/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/ask", protectedHandler)
	mux.Handle("POST /v1/translate", protectedHandler)
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("GET /v1/schema", protectedHandler)
	mux.Handle("GET /v1/conversations", protectedHandler)
	mux.Handle("POST /v1/conversations", protectedHandler)
	mux.Handle("GET /v1/conversations/{conversation}", protectedHandler)
	mux.Handle("DELETE /v1/conversations/{conversation}", protectedHandler)
	mux.Handle("GET /v1/conversations/{conversation}/messages", protectedHandler)
	mux.Handle("POST /v1/export", protectedHandler)
	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckTargetConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Target.Dialect == "" {
			return errors.New("target dialect is not configured")
		}
		if cfg.Target.DSN == "" && cfg.Target.Database == "" {
			return errors.New("target database is not configured")
		}
		return nil
	}
}

func CheckLLMConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.LLM.APIKey == "" {
			return errors.New("llm api key is not configured")
		}
		return nil
	}
}

func CheckChatStore(store chat.Store) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("chat store is not configured")
		}
		return store.HealthCheck(ctx)
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
