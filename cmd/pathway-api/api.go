// Package main provides the Pathway API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/clinicdesk/pathway/pkg/cache"
	"github.com/clinicdesk/pathway/pkg/eventbus"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/persistence"
	"github.com/clinicdesk/pathway/pkg/services"
	"github.com/clinicdesk/pathway/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	identity    identity.Resolver
	eventBus    eventbus.EventBus
	cache       cache.TemplateCache
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	resolver identity.Resolver,
	eventBus eventbus.EventBus,
	templateCache cache.TemplateCache,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		identity:    resolver,
		eventBus:    eventBus,
		cache:       templateCache,
	}
}

func (a *API) App() *fiber.App {
	templateService := services.NewTemplate(a.persistence, a.identity, a.eventBus, a.logger)
	graphService := services.NewGraph(a.persistence, a.identity, a.eventBus, a.logger)
	approvalService := services.NewApproval(a.persistence, a.identity, a.eventBus, a.logger)
	instanceService := services.NewInstance(a.persistence, a.identity, a.eventBus, nil, a.logger)
	transferService := services.NewTransfer(a.persistence, a.identity, a.logger)

	handlers := web.NewAPIHandlers(
		templateService,
		graphService,
		approvalService,
		instanceService,
		transferService,
		a.identity,
		a.cache,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Pathway API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
