package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/readalong-api/internal/config"
	"github.com/noah-isme/readalong-api/internal/handler"
	"github.com/noah-isme/readalong-api/internal/middleware"
	"github.com/noah-isme/readalong-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentHandler    *handler.StudentHandler
	AssessmentHandler *handler.AssessmentHandler
	PlanHandler       *handler.PlanHandler
	ActivityHandler   *handler.ActivityHandler
	BenchmarkHandler  *handler.BenchmarkHandler
	JWTMiddleware     fiber.Handler
	ParentSession     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	session := deps.ParentSession
	if session == nil {
		session = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.StudentHandler != nil {
		deps.StudentHandler.Register(api.Group("/students", jwtMiddleware, session))
	}
	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(api.Group("/assessments", jwtMiddleware, session))
	}
	if deps.PlanHandler != nil {
		deps.PlanHandler.Register(api.Group("/plans", jwtMiddleware, session))
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/activities", jwtMiddleware, session))
	}
	if deps.BenchmarkHandler != nil {
		admin := api.Group("/admin", jwtMiddleware, middleware.RequireRole(middleware.RoleAdmin))
		deps.BenchmarkHandler.Register(admin.Group("/benchmarks"))
	}
}
