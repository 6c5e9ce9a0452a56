package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ktej255/leadflow/pkg/condition"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// FetchAll retrieves every workflow.
func (w *Workflow) FetchAll(ctx context.Context) ([]*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetAll(ctx)
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// FetchTemplate retrieves a communication template by its ID.
func (w *Workflow) FetchTemplate(ctx context.Context, id string) (*models.CommunicationTemplate, error) {
	return w.persistence.TemplateRepository().GetByID(ctx, id)
}

// Create adds a new workflow in Draft status.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.Name == "" {
		return nil, ErrWorkflowNameRequired
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.WorkflowID = workflow.ID
	}

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update modifies an existing workflow by its ID.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.WorkflowID = workflowID
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Delete soft-deletes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	err := w.persistence.WorkflowRepository().Delete(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// Activate validates a workflow's configuration and moves it to Active.
// Misconfiguration is caught here, at activation time, not during
// execution.
func (w *Workflow) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := w.validateForActivation(ctx, workflow); err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusActive
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to activate workflow: %w", err)
	}

	return workflow, nil
}

// SetStatus moves a workflow to Paused or Archived.
func (w *Workflow) SetStatus(ctx context.Context, workflowID string, status models.WorkflowStatus) (*models.Workflow, error) {
	if status != models.WorkflowStatusPaused && status != models.WorkflowStatusArchived && status != models.WorkflowStatusDraft {
		return nil, NewValidationError(
			"SetStatus",
			"INVALID_STATUS",
			fmt.Sprintf("cannot move workflow to status %q, use the activate operation for ACTIVE", status),
			ErrInvalidStatus,
		)
	}

	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.Status = status
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow status: %w", err)
	}

	return workflow, nil
}

func (w *Workflow) validateForActivation(ctx context.Context, workflow *models.Workflow) error {
	if workflow == nil {
		return ErrWorkflowNil
	}

	if workflow.Name == "" {
		return ErrWorkflowNameRequired
	}

	if workflow.FirstStep() == nil {
		return ErrStepsRequired
	}

	if err := w.validateTrigger(workflow); err != nil {
		return err
	}

	for _, step := range workflow.Steps {
		if err := w.validateStep(workflow, step); err != nil {
			return err
		}

		if step.Type == models.StepTypeSendMessage {
			if _, err := w.persistence.TemplateRepository().GetByID(ctx, step.SendMessage.TemplateID); err != nil {
				if errors.Is(err, persistence.ErrTemplateNotFound) {
					return NewValidationError(
						"validateForActivation",
						"INVALID_STEP",
						fmt.Sprintf("step %s references unknown template %s", step.ID, step.SendMessage.TemplateID),
						ErrInvalidStep,
					)
				}

				return fmt.Errorf("failed to load template: %w", err)
			}
		}
	}

	return nil
}

func (w *Workflow) validateTrigger(workflow *models.Workflow) error {
	switch workflow.TriggerType {
	case models.TriggerLeadCreated, models.TriggerLeadUpdated, models.TriggerStageChanged,
		models.TriggerFieldUpdate, models.TriggerUserActivity, models.TriggerManual:
		return nil

	case models.TriggerSpecificDate:
		raw, ok := workflow.TriggerConfig["date"].(string)
		if !ok {
			return NewValidationError(
				"validateTrigger",
				"INVALID_TRIGGER",
				"SPECIFIC_DATE workflows require a trigger_config date",
				ErrInvalidTrigger,
			)
		}

		if _, err := time.Parse(time.RFC3339, raw); err != nil {
			return NewValidationError(
				"validateTrigger",
				"INVALID_TRIGGER",
				fmt.Sprintf("invalid trigger date %q: %v", raw, err),
				ErrInvalidTrigger,
			)
		}

		return w.validatePollSchedule(workflow)

	case models.TriggerTimeDelay:
		if _, ok := workflow.TriggerConfig["delay_minutes"].(float64); !ok {
			if _, ok := workflow.TriggerConfig["delay_minutes"].(int); !ok {
				return NewValidationError(
					"validateTrigger",
					"INVALID_TRIGGER",
					"TIME_DELAY workflows require a numeric trigger_config delay_minutes",
					ErrInvalidTrigger,
				)
			}
		}

		return w.validatePollSchedule(workflow)

	default:
		return NewValidationError(
			"validateTrigger",
			"INVALID_TRIGGER",
			fmt.Sprintf("unknown trigger type %q", workflow.TriggerType),
			ErrInvalidTrigger,
		)
	}
}

// validatePollSchedule checks the optional cron override polled
// workflows may carry.
func (w *Workflow) validatePollSchedule(workflow *models.Workflow) error {
	raw, ok := workflow.TriggerConfig["poll_cron"].(string)
	if !ok {
		return nil
	}

	if _, err := cron.ParseStandard(raw); err != nil {
		return NewValidationError(
			"validateTrigger",
			"INVALID_TRIGGER",
			fmt.Sprintf("invalid poll_cron expression %q: %v", raw, err),
			ErrInvalidTrigger,
		)
	}

	return nil
}

func (w *Workflow) validateStep(workflow *models.Workflow, step *models.WorkflowStep) error {
	if err := step.Validate(); err != nil {
		return NewValidationError("validateStep", "INVALID_STEP", err.Error(), ErrInvalidStep)
	}

	switch step.Type {
	case models.StepTypeCondition:
		if err := condition.Validate(step.Condition.Condition); err != nil {
			return NewValidationError(
				"validateStep",
				"INVALID_STEP",
				fmt.Sprintf("step %s: %v", step.ID, err),
				ErrInvalidStep,
			)
		}

		for _, target := range []string{step.Condition.TrueNextStep, step.Condition.FalseNextStep} {
			if target == "" {
				continue
			}

			if _, ok := workflow.StepByID(target); !ok {
				return NewValidationError(
					"validateStep",
					"INVALID_BRANCH_TARGET",
					fmt.Sprintf("step %s branches to unknown step %s", step.ID, target),
					ErrInvalidBranchTarget,
				)
			}
		}

	case models.StepTypeWait:
		modes := 0
		if step.Wait.DurationMinutes != nil {
			modes++
		}

		if step.Wait.UntilDate != nil {
			modes++
		}

		if step.Wait.ForEvent != "" {
			modes++
		}

		if modes != 1 {
			return NewValidationError(
				"validateStep",
				"INVALID_STEP",
				fmt.Sprintf("step %s must configure exactly one wait mode", step.ID),
				ErrInvalidStep,
			)
		}

	case models.StepTypeUpdateField:
		if len(step.UpdateField.Updates) == 0 {
			return NewValidationError(
				"validateStep",
				"INVALID_STEP",
				fmt.Sprintf("step %s has an empty field_updates map", step.ID),
				ErrInvalidStep,
			)
		}

	case models.StepTypeAssign:
		if step.Assign.UserID == "" && step.Assign.Team == "" {
			return NewValidationError(
				"validateStep",
				"INVALID_STEP",
				fmt.Sprintf("step %s assigns neither a user nor a team", step.ID),
				ErrInvalidStep,
			)
		}
	}

	return nil
}
