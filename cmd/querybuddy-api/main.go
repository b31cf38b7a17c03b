package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querybuddy/querybuddy/internal/api"
	"github.com/querybuddy/querybuddy/internal/api/uistatic"
	"github.com/querybuddy/querybuddy/internal/auth"
	"github.com/querybuddy/querybuddy/internal/chat"
	chatmemory "github.com/querybuddy/querybuddy/internal/chat/memory"
	chatpostgres "github.com/querybuddy/querybuddy/internal/chat/postgres"
	chatredis "github.com/querybuddy/querybuddy/internal/chat/redis"
	"github.com/querybuddy/querybuddy/internal/config"
	"github.com/querybuddy/querybuddy/internal/export"
	"github.com/querybuddy/querybuddy/internal/llm"
	"github.com/querybuddy/querybuddy/internal/observability"
	s3store "github.com/querybuddy/querybuddy/internal/storage/s3"
	"github.com/querybuddy/querybuddy/internal/target"
	"github.com/querybuddy/querybuddy/internal/workflow"
)

func main() {
	cfg, err := config.LoadFromEnv("querybuddy-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	targetDB, err := target.Open(context.Background(), target.Config{
		Dialect:      cfg.Target.Dialect,
		DSN:          cfg.Target.DSN,
		Host:         cfg.Target.Host,
		Port:         cfg.Target.Port,
		Database:     cfg.Target.Database,
		User:         cfg.Target.User,
		Password:     cfg.Target.Password,
		MaxOpenConns: cfg.Target.MaxOpenConns,
		MaxIdleConns: cfg.Target.MaxIdleConns,
	})
	if err != nil {
		logger.Error("failed to open target database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = targetDB.Close() }()

	inspector := target.NewInspector(targetDB, cfg.Target.Dialect, cfg.Workflow.SchemaSampleRows)
	executor := target.NewExecutor(targetDB, cfg.Target.Dialect)

	chatStore, closeStore, err := openChatStore(cfg)
	if err != nil {
		logger.Error("failed to open chat store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	baseURL, err := llm.BaseURLForProvider(cfg.LLM.Provider, cfg.LLM.BaseURL)
	if err != nil {
		logger.Error("failed to resolve llm base url", slog.Any("error", err))
		os.Exit(1)
	}
	sqlLLM, err := llm.NewChatClient(llm.ChatClientConfig{
		BaseURL: baseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.SQLModel,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize sql model client", slog.Any("error", err))
		os.Exit(1)
	}
	chatLLM, err := llm.NewChatClient(llm.ChatClientConfig{
		BaseURL: baseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.ChatModel,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize chat model client", slog.Any("error", err))
		os.Exit(1)
	}

	engine := workflow.NewEngine(sqlLLM, chatLLM, inspector, executor, chatStore, logger, workflow.Config{
		Dialect:         cfg.Target.Dialect,
		ContextMessages: cfg.Workflow.ContextMessages,
		MaxResultRows:   cfg.Workflow.MaxResultRows,
		PreviewRows:     cfg.Workflow.PreviewRows,
		SQLTemperature:  cfg.LLM.SQLTemperature,
		ChatTemperature: cfg.LLM.ChatTemperature,
		MaxTokens:       cfg.LLM.MaxTokens,
	})

	deps := api.Dependencies{
		Logger:        logger,
		Engine:        engine,
		Schema:        inspector,
		Executor:      executor,
		ChatStore:     chatStore,
		MaxResultRows: cfg.Workflow.MaxResultRows,
		UI:            uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckTargetConfig(cfg),
			api.CheckLLMConfig(cfg),
			api.CheckChatStore(chatStore),
			inspector.HealthCheck,
		),
		DependencyTimeout: time.Second,
	}

	if cfg.Export.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Export.Endpoint,
			Region:           cfg.Export.Region,
			Bucket:           cfg.Export.Bucket,
			AccessKeyID:      cfg.Export.AccessKeyID,
			SecretAccessKey:  cfg.Export.SecretAccessKey,
			UseSSL:           cfg.Export.UseSSL,
			Prefix:           cfg.Export.Prefix,
			AutoCreateBucket: cfg.Export.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize export store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Exporter = export.NewExporter(objectStore)
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", cfg.Target.Dialect),
			slog.String("chat_backend", cfg.ChatStore.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openChatStore(cfg config.Config) (chat.Store, func(), error) {
	switch cfg.ChatStore.Backend {
	case "postgres":
		db, err := chatpostgres.Open(context.Background(), chatpostgres.DBConfig{
			DSN:             cfg.ChatStore.DSN,
			MaxOpenConns:    cfg.ChatStore.MaxOpenConns,
			MaxIdleConns:    cfg.ChatStore.MaxIdleConns,
			ConnMaxIdleTime: cfg.ChatStore.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.ChatStore.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		return chatpostgres.NewStore(db), func() { _ = db.Close() }, nil
	case "redis":
		store := chatredis.NewStore(chatredis.Config{
			Addr:     cfg.ChatStore.RedisAddr,
			Password: cfg.ChatStore.RedisPassword,
			DB:       cfg.ChatStore.RedisDB,
		})
		return store, func() { _ = store.Close() }, nil
	default:
		return chatmemory.NewStore(), func() {}, nil
	}
}
