package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-service/internal/api/http/handlers"
	"github.com/spec-kit/locate-service/internal/app"
	"github.com/spec-kit/locate-service/internal/auth"
)

// NewServer builds the fiber app serving a.
func NewServer(a *app.App) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:               a.Config.App.Name,
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(server, a.Logger, a.Metrics, a.Config.App.RequestTimeout())

	RegisterRoutes(server, RouteConfig{
		Health:         handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, a.Postgres, a.Redis),
		Users:          handlers.NewUsersHandler(a.Auth),
		Tickets:        handlers.NewTicketsHandler(a.Tickets),
		Conflicts:      handlers.NewConflictsHandler(a.Conflicts),
		Alerts:         handlers.NewAlertsHandler(a.Alerts, a.Acks),
		Subscriptions:  handlers.NewSubscriptionsHandler(a.Subscriptions),
		Sweeps:         handlers.NewSweepsHandler(a),
		AuthMiddleware: auth.NewAuthMiddleware(a.Auth.TokenManager(), a.Store.Users()),
		Metrics:        a.Metrics,
	})
	return server
}
