package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/doc-history/internal/api/http"
	"github.com/spec-kit/doc-history/internal/api/http/handlers"
	"github.com/spec-kit/doc-history/internal/auth"
	"github.com/spec-kit/doc-history/internal/config"
	"github.com/spec-kit/doc-history/internal/events"
	"github.com/spec-kit/doc-history/internal/observability"
	"github.com/spec-kit/doc-history/internal/persistence"
	"github.com/spec-kit/doc-history/internal/repository"
	"github.com/spec-kit/doc-history/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	historyCfg, err := config.LoadHistory(cfg.History.ConfigPath)
	if err != nil {
		logger.Fatal("failed to load history config", zap.Error(err))
	}
	logger.Info("history config loaded",
		zap.String("path", cfg.History.ConfigPath),
		zap.Int("collections", len(historyCfg.Collections)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var documents repository.DocumentRepository
	if pool := pg.PoolHandle(); pool != nil {
		documents = repository.NewDocumentRepository(pool)
	} else {
		logger.Warn("using in-memory document store; data is lost on restart")
		documents = repository.NewMemoryDocumentRepository()
	}
	documents = repository.NewCachedDocumentRepository(documents, redis.Client, cfg.Redis.CacheTTL(), logger)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()

	documentService := service.NewDocumentService(service.DocumentDependencies{
		Documents:  documents,
		History:    historyCfg,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, cfg.Auth.Required)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version,
		handlers.Dependency{Name: "postgres", Ping: pg.Ping, Optional: pg.PoolHandle() == nil},
		handlers.Dependency{Name: "redis", Ping: redis.Ping, Optional: !redis.Enabled()},
	)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Documents:      handlers.NewDocumentsHandler(documentService),
		History:        handlers.NewHistoryHandler(documentService),
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
