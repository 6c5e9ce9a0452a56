package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Ktej255/leadflow/pkg/eventbus"
	"github.com/Ktej255/leadflow/pkg/events"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/trigger"
)

// Enrollment accepts lead events from the API and performs manual
// enrollments. Lead events go onto the bus; the trigger evaluator in
// the worker picks them up.
type Enrollment struct {
	persistence persistence.Persistence
	leads       leadservice.Service
	publisher   eventbus.EventPublisher
	evaluator   *trigger.Evaluator
	logger      *slog.Logger
}

func NewEnrollment(logger *slog.Logger, p persistence.Persistence, leads leadservice.Service, publisher eventbus.EventPublisher, evaluator *trigger.Evaluator) *Enrollment {
	return &Enrollment{
		persistence: p,
		leads:       leads,
		publisher:   publisher,
		evaluator:   evaluator,
		logger:      logger.With("module", "enrollment_service"),
	}
}

// PublishLeadEvent validates and publishes a CRM-side lead event.
func (s *Enrollment) PublishLeadEvent(ctx context.Context, eventType events.EventType, leadID string, payload map[string]any) (*events.LeadEvent, error) {
	if leadID == "" {
		return nil, NewValidationError("PublishLeadEvent", "INVALID_REQUEST", "lead_id is required", ErrInvalidRequest)
	}

	event := &events.LeadEvent{
		BaseEvent: events.NewBaseEvent(eventType, leadID),
		Payload:   payload,
	}

	if _, ok := event.TriggerType(); !ok {
		return nil, NewValidationError(
			"PublishLeadEvent",
			"UNKNOWN_EVENT",
			fmt.Sprintf("event type %q is not a lead event", eventType),
			ErrUnknownEvent,
		)
	}

	if err := s.publisher.Publish(ctx, leadID, event); err != nil {
		return nil, fmt.Errorf("failed to publish lead event: %w", err)
	}

	s.logger.InfoContext(ctx, "Lead event published", "event_type", eventType, "lead_id", leadID)

	return event, nil
}

// EnrollManual enrolls a lead into a MANUAL-trigger workflow right away,
// bypassing the bus.
func (s *Enrollment) EnrollManual(ctx context.Context, workflowID, leadID string) (*models.WorkflowExecution, error) {
	if leadID == "" {
		return nil, NewValidationError("EnrollManual", "INVALID_REQUEST", "lead_id is required", ErrInvalidRequest)
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusActive {
		return nil, ErrWorkflowNotActive
	}

	if workflow.TriggerType != models.TriggerManual {
		return nil, ErrWorkflowNotManual
	}

	fields, err := s.leads.GetLeadFields(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead fields: %w", err)
	}

	execution, err := s.evaluator.Enroll(ctx, workflow, leadID, fields)
	if err != nil {
		return nil, err
	}

	if execution == nil {
		// Filters did not match or the lead already has a live run.
		if !workflow.AllowReEntry {
			exists, err := s.persistence.ExecutionRepository().NonTerminalExists(ctx, workflowID, leadID)
			if err == nil && exists {
				return nil, ErrAlreadyEnrolled
			}
		}

		return nil, NewValidationError(
			"EnrollManual",
			"INVALID_REQUEST",
			"lead does not match the workflow's audience filters",
			ErrInvalidRequest,
		)
	}

	return execution, nil
}
