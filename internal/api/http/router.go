package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/doc-history/internal/api/http/handlers"
	"github.com/spec-kit/doc-history/internal/auth"
	"github.com/spec-kit/doc-history/internal/domain"
	"github.com/spec-kit/doc-history/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Documents      *handlers.DocumentsHandler
	History        *handlers.HistoryHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	viewer := auth.RequireRole(domain.RoleViewer)
	editor := auth.RequireRole(domain.RoleEditor)
	admin := auth.RequireRole(domain.RoleAdmin)

	documents := app.Group("/collections/:collection/documents", cfg.AuthMiddleware.Handle)
	documents.Post("", editor, cfg.Documents.Create)
	documents.Post("/find", viewer, cfg.Documents.Find)
	documents.Get("/:id", viewer, cfg.Documents.Get)
	documents.Put("/:id", editor, cfg.Documents.Replace)
	documents.Delete("/:id", admin, cfg.Documents.Delete)

	documents.Get("/:id/history", viewer, cfg.History.List)
	documents.Post("/:id/revise", editor, cfg.History.Revise)
	documents.Delete("/:id/history/:eventId", admin, cfg.History.Forget)
}
