package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-submission-gateway/internal/config"
	"github.com/noah-isme/gema-submission-gateway/internal/handler"
	"github.com/noah-isme/gema-submission-gateway/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	AttemptHandler    *handler.AttemptHandler
	SubmissionHandler *handler.SubmissionHandler
	QuizHandler       *handler.QuizHandler
	HealthProbes      map[string]handler.HealthProbe
	JWTMiddleware     fiber.Handler
	UploadLimiter     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	assignments := api.Group("/assignments", jwtMiddleware)
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(assignments)
	}
	if deps.AttemptHandler != nil {
		deps.AttemptHandler.Register(assignments)
	}

	if deps.SubmissionHandler != nil {
		var guards []fiber.Handler
		if deps.UploadLimiter != nil {
			guards = append(guards, deps.UploadLimiter)
		}
		deps.SubmissionHandler.Register(api.Group("/submissions", jwtMiddleware), guards...)
	}

	if deps.QuizHandler != nil {
		deps.QuizHandler.Register(api.Group("/quiz/attempts", jwtMiddleware))
	}
}
