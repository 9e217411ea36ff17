package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/locate-service/internal/api/http/handlers"
	"github.com/spec-kit/locate-service/internal/auth"
	"github.com/spec-kit/locate-service/internal/domain"
	"github.com/spec-kit/locate-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Conflicts      *handlers.ConflictsHandler
	Alerts         *handlers.AlertsHandler
	Subscriptions  *handlers.SubscriptionsHandler
	Sweeps         *handlers.SweepsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Post("/auth/login", cfg.Users.Login)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	api.Get("/me", cfg.Users.Me)
	api.Post("/users", auth.RequireRole(), cfg.Users.Create)

	supervisors := auth.RequireRole(domain.RoleSupervisor)
	intake := auth.RequireRole(domain.RoleIntake, domain.RoleSupervisor)

	tickets := api.Group("/tickets")
	tickets.Post("", intake, cfg.Tickets.CreateTicket)
	tickets.Get("/flagged", supervisors, cfg.Tickets.ListFlagged)
	tickets.Get("/:id", cfg.Tickets.GetTicketStatus)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Get("/:id/conflicts", cfg.Conflicts.ListConflicts)
	tickets.Post("/:id/responses", auth.RequireRole(domain.RoleIntake), cfg.Tickets.RecordResponse)
	tickets.Post("/:id/verifications", auth.RequireRole(domain.RoleCrew, domain.RoleSupervisor), cfg.Tickets.RecordVerification)
	tickets.Post("/:id/cancel", intake, cfg.Tickets.CancelTicket)
	tickets.Post("/:id/renewals", intake, cfg.Tickets.CreateRenewal)
	tickets.Post("/:id/flag/clear", supervisors, cfg.Tickets.ClearFlag)

	api.Post("/conflicts/:id/resolve", supervisors, cfg.Conflicts.ResolveConflict)

	alerts := api.Group("/alerts")
	alerts.Get("/due", supervisors, cfg.Alerts.ListDue)
	alerts.Get("/:id/acks", supervisors, cfg.Alerts.ListAcknowledgements)
	alerts.Post("/:id/ack", cfg.Alerts.Acknowledge)
	alerts.Post("/:id/delivery", auth.RequireRole(domain.RoleIntake), cfg.Alerts.RecordDelivery)

	subs := api.Group("/subscriptions")
	subs.Get("", cfg.Subscriptions.List)
	subs.Post("", cfg.Subscriptions.Create)
	subs.Put("/:id", cfg.Subscriptions.Replace)

	api.Post("/sweeps/:name", auth.RequireRole(), cfg.Sweeps.Run)
}
