package main

import (
	"context"
	"os"

	"github.com/clinicdesk/pathway/pkg/cache"
	"github.com/clinicdesk/pathway/pkg/cmd"
	"github.com/clinicdesk/pathway/pkg/identity"
	"github.com/clinicdesk/pathway/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "pathway-api",
		Usage:                 "Author reception scripts and run them step by step",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the template cache (empty disables caching)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "grants-file",
				Usage:   "Path to the staff grants JSON file",
				Sources: cli.EnvVars("GRANTS_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Pathway API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			templateCache, err := cmd.NewTemplateCache(ctx, logger, command.String("redis-url"))
			if err != nil {
				return err
			}

			if templateCache != nil {
				defer func() {
					if err := templateCache.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close template cache", "error", err)
					}
				}()

				if _, err := cache.NewInvalidator(eventBus, templateCache, logger); err != nil {
					return err
				}

				go func() {
					if err := eventBus.Subscribe(ctx); err != nil {
						logger.ErrorContext(ctx, "Event bus subscription stopped", "error", err)
					}
				}()
			}

			resolver, err := identity.LoadResolver(command.String("grants-file"))
			if err != nil {
				return err
			}

			api := NewAPI(
				logger,
				persistence,
				resolver,
				eventBus,
				templateCache,
			)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
