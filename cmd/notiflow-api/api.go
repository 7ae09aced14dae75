// Package main provides the Notiflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/notiflow/pkg/content"
	"github.com/dukex/notiflow/pkg/eventbus"
	"github.com/dukex/notiflow/pkg/models"
	"github.com/dukex/notiflow/pkg/persistence"
	"github.com/dukex/notiflow/pkg/preview"
	"github.com/dukex/notiflow/pkg/services"
	"github.com/dukex/notiflow/pkg/template"
	"github.com/dukex/notiflow/pkg/web"
)

type API struct {
	logger    *slog.Logger
	validate  *validator.Validate
	workflows *services.Workflow
	previews  *services.Preview
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventPublisher,
	tracer trace.Tracer,
	tier models.Tier,
) *API {
	contentValidator := content.NewValidator(logger, tracer, content.NewPlanTierValidator())
	workflows := services.NewWorkflow(logger, persistence, contentValidator, eventBus, tracer, tier)
	previewer := preview.NewPreviewer(contentValidator, template.NewRenderer(), logger)

	return &API{
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		workflows: workflows,
		previews:  services.NewPreview(workflows, previewer),
	}
}

// Workflows returns the workflow service backing the API.
func (a *API) Workflows() *services.Workflow {
	return a.workflows
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.workflows, a.previews, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Notiflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
