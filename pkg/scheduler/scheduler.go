// Package scheduler pulls due executions from the store, leases them,
// and hands them to the step executor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Ktej255/leadflow/pkg/eventbus"
	"github.com/Ktej255/leadflow/pkg/events"
	"github.com/Ktej255/leadflow/pkg/executor"
	"github.com/Ktej255/leadflow/pkg/lease"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/otelhelper"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultLeaseTTL     = 2 * time.Minute
	defaultBatchSize    = 100
)

type Scheduler struct {
	workerID    string
	persistence persistence.Persistence
	leases      lease.Store
	executor    *executor.Executor
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer

	pollInterval time.Duration
	leaseTTL     time.Duration
	batchSize    int

	mu        sync.RWMutex
	healthErr error
}

func NewScheduler(logger *slog.Logger, workerID string, p persistence.Persistence, leases lease.Store, exec *executor.Executor, publisher eventbus.EventPublisher) *Scheduler {
	return &Scheduler{
		workerID:     workerID,
		persistence:  p,
		leases:       leases,
		executor:     exec,
		publisher:    publisher,
		logger:       logger.With("module", "scheduler", "worker_id", workerID),
		tracer:       otel.Tracer("leadflow/scheduler"),
		pollInterval: defaultPollInterval,
		leaseTTL:     defaultLeaseTTL,
		batchSize:    defaultBatchSize,
	}
}

// Start polls until the context is cancelled. Per-execution failures
// are recorded on the execution row; only infrastructure failures reach
// the health signal.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting execution scheduler", "poll_interval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Execution scheduler stopped")

			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "Scheduling tick failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single scheduling tick.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	due, err := s.persistence.ExecutionRepository().Due(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		err = fmt.Errorf("failed to query due executions: %w", err)
		s.setHealth(err)

		return err
	}

	s.setHealth(nil)

	for _, execution := range due {
		s.process(ctx, execution)
	}

	return nil
}

func (s *Scheduler) process(ctx context.Context, execution *models.WorkflowExecution) {
	logger := s.logger.With("execution_id", execution.ID)

	err := s.leases.Acquire(ctx, execution.ID, s.workerID, s.leaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrLeaseHeld) {
			// Another worker owns it. Not an error.
			return
		}

		logger.ErrorContext(ctx, "Failed to acquire execution lease", "error", err)
		s.setHealth(err)

		return
	}

	defer func() {
		if err := s.leases.Release(ctx, execution.ID, s.workerID); err != nil {
			logger.ErrorContext(ctx, "Failed to release execution lease", "error", err)
		}
	}()

	// The batch row is a snapshot taken before the lease was ours. A
	// peer may have ticked this execution in between, so re-read it and
	// re-check that it is still due before touching it.
	execution, err = s.persistence.ExecutionRepository().GetByID(ctx, execution.ID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to reload leased execution", "error", err)
		s.setHealth(err)

		return
	}

	if execution.Status.IsTerminal() {
		return
	}

	if execution.NextActionAt == nil || execution.NextActionAt.After(time.Now().UTC()) {
		return
	}

	renewCtx, stopRenewal := context.WithCancel(ctx)
	defer stopRenewal()

	go s.keepLeaseAlive(renewCtx, logger, execution.ID)

	tickCtx, span := otelhelper.StartSpan(ctx, s.tracer, "scheduler.tick",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.LeadIDKey, execution.LeadID),
		attribute.String(otelhelper.WorkerIDKey, s.workerID),
	)
	defer span.End()

	if err := s.executor.Tick(tickCtx, execution); err != nil {
		logger.ErrorContext(ctx, "Execution tick failed", "error", err)
		otelhelper.SetError(span, err)

		return
	}

	if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		logger.ErrorContext(ctx, "Failed to persist execution", "error", err)
		otelhelper.SetError(span, err)
		s.setHealth(err)

		return
	}

	if execution.Status.IsTerminal() {
		s.publishFinished(ctx, logger, execution)
	}
}

// keepLeaseAlive renews the lease until the tick is done. A single tick
// can walk many zero-delay steps, each with its own dispatch timeout,
// and that can outlast the initial TTL.
func (s *Scheduler) keepLeaseAlive(ctx context.Context, logger *slog.Logger, executionID string) {
	ticker := time.NewTicker(s.leaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.leases.Renew(ctx, executionID, s.workerID, s.leaseTTL); err != nil {
				logger.ErrorContext(ctx, "Failed to renew execution lease", "error", err)

				return
			}
		}
	}
}

func (s *Scheduler) publishFinished(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution) {
	if s.publisher == nil {
		return
	}

	finished := events.ExecutionFinished{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFinishedEvent, execution.LeadID),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		Status:      execution.Status,
		Error:       execution.ErrorMessage,
	}
	finished.WorkerID = s.workerID

	if err := s.publisher.Publish(ctx, execution.ID, finished); err != nil {
		logger.ErrorContext(ctx, "Failed to publish execution finished event", "error", err)
	}
}

func (s *Scheduler) setHealth(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthErr = err
}

// HealthCheck reports the last infrastructure failure, if the most
// recent tick saw one.
func (s *Scheduler) HealthCheck() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.healthErr
}
