// Package trigger turns domain events into workflow enrollments.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/condition"
	"github.com/Ktej255/leadflow/pkg/eventbus"
	"github.com/Ktej255/leadflow/pkg/events"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
)

// Evaluator matches incoming lead events against Active workflows and
// enrolls matching leads. A failure on one workflow never blocks
// evaluation of the others.
type Evaluator struct {
	persistence persistence.Persistence
	leads       leadservice.Service
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewEvaluator(logger *slog.Logger, p persistence.Persistence, leads leadservice.Service, publisher eventbus.EventPublisher) *Evaluator {
	return &Evaluator{
		persistence: p,
		leads:       leads,
		publisher:   publisher,
		logger:      logger.With("module", "trigger_evaluator"),
		now:         time.Now,
	}
}

// Register subscribes the evaluator to every lead event type on the bus.
func (e *Evaluator) Register(bus eventbus.EventSubscriber) error {
	for _, eventType := range []events.EventType{
		events.LeadCreatedEvent,
		events.LeadUpdatedEvent,
		events.StageChangedEvent,
		events.FieldUpdateEvent,
		events.UserActivityEvent,
	} {
		if err := bus.Handle(eventType, e.handleEvent); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return nil
}

func (e *Evaluator) handleEvent(ctx context.Context, event any) error {
	leadEvent, ok := event.(*events.LeadEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	_, err := e.Evaluate(ctx, leadEvent)

	return err
}

// Evaluate enrolls the event's lead into every matching Active workflow
// and returns the created executions.
func (e *Evaluator) Evaluate(ctx context.Context, event *events.LeadEvent) ([]*models.WorkflowExecution, error) {
	triggerType, ok := event.TriggerType()
	if !ok {
		return nil, fmt.Errorf("event %s does not map to a trigger type", event.Type)
	}

	logger := e.logger.With("event_type", event.Type, "lead_id", event.LeadID)

	workflows, err := e.persistence.WorkflowRepository().GetByStatus(ctx, models.WorkflowStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to load active workflows: %w", err)
	}

	fields, err := e.leads.GetLeadFields(ctx, event.LeadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead fields: %w", err)
	}

	var created []*models.WorkflowExecution

	for _, workflow := range workflows {
		if workflow.TriggerType != triggerType {
			continue
		}

		execution, err := e.Enroll(ctx, workflow, event.LeadID, fields)
		if err != nil {
			// Fault isolation: one misconfigured workflow must not block
			// the rest.
			logger.ErrorContext(ctx, "Failed to evaluate workflow for event",
				"workflow_id", workflow.ID,
				"error", err,
			)

			continue
		}

		if execution != nil {
			created = append(created, execution)
		}
	}

	return created, nil
}

// Enroll creates a Pending execution for the lead if the audience
// filters match and the re-entry rule allows it. It returns nil without
// error when the lead simply does not qualify.
func (e *Evaluator) Enroll(ctx context.Context, workflow *models.Workflow, leadID string, fields map[string]any) (*models.WorkflowExecution, error) {
	matched, err := condition.MatchFilters(workflow.AudienceFilters, fields)
	if err != nil {
		return nil, fmt.Errorf("malformed audience filters: %w", err)
	}

	if !matched {
		return nil, nil
	}

	if !workflow.AllowReEntry {
		exists, err := e.persistence.ExecutionRepository().NonTerminalExists(ctx, workflow.ID, leadID)
		if err != nil {
			return nil, fmt.Errorf("failed to check re-entry: %w", err)
		}

		if exists {
			return nil, nil
		}
	}

	firstStep := workflow.FirstStep()
	if firstStep == nil {
		return nil, fmt.Errorf("workflow %s has no active steps", workflow.ID)
	}

	now := e.now().UTC()

	execution := &models.WorkflowExecution{
		WorkflowID:    workflow.ID,
		LeadID:        leadID,
		Status:        models.ExecutionStatusPending,
		CurrentStepID: &firstStep.ID,
		NextActionAt:  &now,
		StartedAt:     now,
	}

	if err := e.persistence.ExecutionRepository().Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	if err := e.persistence.WorkflowRepository().IncrementCounter(ctx, workflow.ID, persistence.CounterEnrolled); err != nil {
		e.logger.ErrorContext(ctx, "Failed to increment enrollment counter",
			"workflow_id", workflow.ID,
			"error", err,
		)
	}

	e.logger.InfoContext(ctx, "Lead enrolled",
		"workflow_id", workflow.ID,
		"lead_id", leadID,
		"execution_id", execution.ID,
	)

	if e.publisher != nil {
		enrolled := events.ExecutionEnrolled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionEnrolledEvent, leadID),
			ExecutionID: execution.ID,
			WorkflowID:  workflow.ID,
		}
		if err := e.publisher.Publish(ctx, execution.ID, enrolled); err != nil {
			e.logger.ErrorContext(ctx, "Failed to publish enrollment event", "error", err)
		}
	}

	return execution, nil
}
