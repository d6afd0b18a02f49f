// Package main provides the Buildgate API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/buildgate/buildgate/pkg/admission"
	"github.com/buildgate/buildgate/pkg/eventbus"
	"github.com/buildgate/buildgate/pkg/orchestrator"
	"github.com/buildgate/buildgate/pkg/otelhelper"
	"github.com/buildgate/buildgate/pkg/persistence"
	"github.com/buildgate/buildgate/pkg/registry"
	"github.com/buildgate/buildgate/pkg/slots"
	"github.com/buildgate/buildgate/pkg/web"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	eventBus     eventbus.EventBus
	orchestrator *orchestrator.Orchestrator
	validate     *validator.Validate
}

func NewAPI(
	ctx context.Context,
	logger *slog.Logger,
	persist persistence.Persistence,
	stepRegistry *registry.Registry,
	eventBus eventbus.EventBus,
	slotStore slots.Store,
) (*API, error) {
	tracer, err := otelhelper.NewTracer(ctx, "buildgate-api")
	if err != nil {
		return nil, err
	}

	evaluator := admission.NewEvaluator(slotStore, logger)

	orch := orchestrator.New(
		"api",
		persist,
		eventBus,
		stepRegistry,
		evaluator,
		tracer,
		logger,
	)

	return &API{
		logger:       logger,
		persistence:  persist,
		registry:     stepRegistry,
		eventBus:     eventBus,
		orchestrator: orch,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.orchestrator,
		a.persistence,
		a.validate,
		a.registry,
		a.eventBus.GenerateID,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Buildgate API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
