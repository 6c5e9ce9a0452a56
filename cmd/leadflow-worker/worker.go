// Package main provides the Leadflow worker: trigger evaluation, the
// execution scheduler, and the periodic poller for clock-based triggers.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ktej255/leadflow/pkg/dispatch"
	"github.com/Ktej255/leadflow/pkg/eventbus"
	"github.com/Ktej255/leadflow/pkg/executor"
	"github.com/Ktej255/leadflow/pkg/lease"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/scheduler"
	"github.com/Ktej255/leadflow/pkg/services"
	"github.com/Ktej255/leadflow/pkg/trigger"
)

type Worker struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	leases      lease.Store
	leads       *leadservice.HTTPClient
	dispatcher  dispatch.Dispatcher
}

func NewWorker(
	id string,
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	leases lease.Store,
	leads *leadservice.HTTPClient,
	dispatcher dispatch.Dispatcher,
) *Worker {
	return &Worker{
		id:          id,
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		leases:      leases,
		leads:       leads,
		dispatcher:  dispatcher,
	}
}

// Start wires the engine components to the event bus, runs the scheduler
// and poller loops, and blocks until SIGINT/SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	evaluator := trigger.NewEvaluator(w.logger, w.persistence, w.leads, w.eventBus)
	if err := evaluator.Register(w.eventBus); err != nil {
		return err
	}

	resume := services.NewResume(w.logger, w.persistence)
	if err := resume.Register(w.eventBus); err != nil {
		return err
	}

	exec := executor.NewExecutor(w.logger, w.persistence, w.leads, w.dispatcher)
	sched := scheduler.NewScheduler(w.logger, w.id, w.persistence, w.leases, exec, w.eventBus)
	poller := scheduler.NewPoller(w.logger, w.persistence, w.leads, w.leads, evaluator)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := w.eventBus.Subscribe(runCtx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	go func() {
		if err := sched.Start(runCtx); err != nil && runCtx.Err() == nil {
			w.logger.ErrorContext(runCtx, "Scheduler stopped", "error", err)
		}
	}()

	if err := poller.Start(runCtx); err != nil {
		return err
	}
	defer poller.Stop()

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker...")
	case <-ctx.Done():
	}

	return nil
}
