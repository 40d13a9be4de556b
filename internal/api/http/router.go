package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Complaints     *handlers.ComplaintsHandler
	Ops            *handlers.OpsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle)

	complaints := protected.Group("/complaints")
	complaints.Get("/", cfg.Complaints.ListComplaints)
	complaints.Get("/:id", cfg.Complaints.GetComplaint)
	complaints.Get("/:id/history", cfg.Complaints.History)
	complaints.Get("/:id/inspect", cfg.Complaints.Inspect)
	complaints.Post("/:id/draft", auth.RequireRole(domain.OperatorRoleBaseOps), cfg.Complaints.GenerateDraft)
	complaints.Post("/:id/approve", auth.RequireRole(domain.OperatorRoleBaseOps, domain.OperatorRoleCX), cfg.Complaints.Approve)

	requireAdmin := auth.RequireRole(domain.OperatorRoleAdmin)
	protected.Post("/cycles", requireAdmin, cfg.Ops.RunCycle)
	protected.Get("/dead-letters", requireAdmin, cfg.Ops.DeadLetters)
	protected.Post("/operators", requireAdmin, cfg.Auth.CreateOperator)
	protected.Post("/operators/:id/deactivate", requireAdmin, cfg.Auth.DeactivateOperator)
	protected.Get("/metrics", cfg.Ops.Metrics)
}
