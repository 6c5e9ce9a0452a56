package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/eventbus"
	"github.com/Ktej255/leadflow/pkg/events"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
)

const (
	resumeRetryAttempts = 3
	resumeRetryDelay    = 250 * time.Millisecond
)

// Resume wakes executions parked on event-based wait steps.
type Resume struct {
	persistence persistence.Persistence
	logger      *slog.Logger
	now         func() time.Time
	retryDelay  time.Duration
}

func NewResume(logger *slog.Logger, p persistence.Persistence) *Resume {
	return &Resume{
		persistence: p,
		logger:      logger.With("module", "resume_service"),
		now:         time.Now,
		retryDelay:  resumeRetryDelay,
	}
}

// Register subscribes the service to resume events on the bus. Unlike the
// HTTP path, there is no caller to surface a conflict to, so a resume that
// races a tick still persisting the wait marker is retried before it is
// given up on.
func (s *Resume) Register(bus eventbus.EventSubscriber) error {
	return bus.Handle(events.ExecutionResumeEvent, func(ctx context.Context, event any) error {
		resume, ok := event.(*events.ExecutionResume)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		_, err := s.ResumeOnEvent(ctx, resume.ExecutionID, resume.EventName)

		for attempt := 0; errors.Is(err, ErrExecutionNotWaiting) && attempt < resumeRetryAttempts; attempt++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}

			_, err = s.ResumeOnEvent(ctx, resume.ExecutionID, resume.EventName)
		}

		if IsConflictError(err) {
			// Still conflicting after the retry window: the execution
			// moved on, or the resume never matched. Not a processing
			// failure.
			s.logger.WarnContext(ctx, "Ignoring resume event",
				"execution_id", resume.ExecutionID,
				"event_name", resume.EventName,
				"reason", err,
			)

			return nil
		}

		return err
	})
}

// FetchExecution retrieves an execution by its ID.
func (s *Resume) FetchExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

// ResumeOnEvent wakes the execution if it is parked on a wait step for
// the named event. The next scheduler tick then advances past the wait.
func (s *Resume) ResumeOnEvent(ctx context.Context, executionID, eventName string) (*models.WorkflowExecution, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.IsTerminal() {
		return nil, ErrExecutionTerminal
	}

	if execution.NextActionAt != nil || execution.CurrentStepID == nil {
		return nil, ErrExecutionNotWaiting
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		return nil, err
	}

	step, ok := workflow.StepByID(*execution.CurrentStepID)
	if !ok || step.Type != models.StepTypeWait || step.Wait.ForEvent == "" {
		return nil, ErrExecutionNotWaiting
	}

	if step.Wait.ForEvent != eventName {
		return nil, ErrEventNameMismatch
	}

	now := s.now().UTC()
	execution.NextActionAt = &now

	if err := s.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save resumed execution: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution resumed",
		"execution_id", executionID,
		"event_name", eventName,
	)

	return execution, nil
}
