// Package main provides the Leadflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/Ktej255/leadflow/pkg/eventbus"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/services"
	"github.com/Ktej255/leadflow/pkg/trigger"
	"github.com/Ktej255/leadflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	leads       leadservice.Service
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	leads leadservice.Service,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		leads:       leads,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	evaluator := trigger.NewEvaluator(a.logger, a.persistence, a.leads, a.eventBus)

	workflowService := services.NewWorkflow(a.persistence)
	enrollmentService := services.NewEnrollment(a.logger, a.persistence, a.leads, a.eventBus, evaluator)
	resumeService := services.NewResume(a.logger, a.persistence)
	deliveryService := services.NewDelivery(a.logger, a.persistence)

	handlers := web.NewAPIHandlers(workflowService, enrollmentService, resumeService, deliveryService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Leadflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/status", handlers.SetWorkflowStatus)
	w.Post("/:id/enroll", handlers.EnrollLead)

	app.Get("/templates/:id", handlers.GetTemplate)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)

	app.Post("/events", handlers.PublishLeadEvent)
	app.Post("/webhooks/delivery", handlers.DeliveryWebhook)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
