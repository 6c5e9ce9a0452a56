package main

import (
	"context"
	"os"
	"time"

	"github.com/Ktej255/leadflow/pkg/cmd"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/log"
	"github.com/Ktej255/leadflow/pkg/otelhelper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "leadflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Run the enrollment, scheduling and step execution worker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "lead-service-url",
				Usage:    "Base URL of the lead service",
				Required: true,
				Sources:  cli.EnvVars("LEAD_SERVICE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the execution lease store (in-memory if empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "provider-webhook-url",
				Usage:   "Channel provider webhook URL (messages are logged if empty)",
				Value:   "",
				Sources: cli.EnvVars("PROVIDER_WEBHOOK_URL"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("leadflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Leadflow Worker")

			if _, err := otelhelper.NewTracer(ctx, "leadflow-worker"); err != nil {
				logger.WarnContext(ctx, "Failed to initialize tracing", "error", err)
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			leases := cmd.NewLeaseStore(ctx, command.String("redis-url"))
			leads := leadservice.NewHTTPClient(command.String("lead-service-url"), 10*time.Second)
			dispatcher := cmd.NewDispatcher(logger, command.String("provider-webhook-url"))

			worker := NewWorker(
				workerID,
				logger,
				persistence,
				eventBus,
				leases,
				leads,
				dispatcher,
			)

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
