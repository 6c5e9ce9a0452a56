package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow and step rows. Steps are stored in
// their own table with the type-specific payload as one JSONB column.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , description
  , status
  , trigger_type
  , trigger_config
  , audience_filters
  , allow_re_entry
  , exit_on_conversion
  , continue_on_pause
  , total_enrolled
  , total_completed
  , total_converted
  , owner
  , created_at
  , updated_at
  , deleted_at
`

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC`

	return r.queryWorkflows(ctx, query)
}

func (r *WorkflowRepository) GetByStatus(ctx context.Context, status models.WorkflowStatus) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE status = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	return r.queryWorkflows(ctx, query, string(status))
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		err = r.loadSteps(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow steps: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL`

	row := r.db.QueryRowContext(ctx, query, id)

	workflow, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadSteps(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	triggerConfigJSON, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	audienceFiltersJSON, err := json.Marshal(workflow.AudienceFilters)
	if err != nil {
		return fmt.Errorf("failed to marshal audience filters: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (
			id, name, description, status, trigger_type, trigger_config,
			audience_filters, allow_re_entry, exit_on_conversion,
			continue_on_pause, total_enrolled, total_completed,
			total_converted, owner, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			audience_filters = EXCLUDED.audience_filters,
			allow_re_entry = EXCLUDED.allow_re_entry,
			exit_on_conversion = EXCLUDED.exit_on_conversion,
			continue_on_pause = EXCLUDED.continue_on_pause,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`,
		workflow.ID, workflow.Name, workflow.Description, string(workflow.Status),
		string(workflow.TriggerType), triggerConfigJSON, audienceFiltersJSON,
		workflow.AllowReEntry, workflow.ExitOnConversion, workflow.ContinueOnPause,
		workflow.TotalEnrolled, workflow.TotalCompleted, workflow.TotalConverted,
		workflow.Owner, workflow.CreatedAt, workflow.UpdatedAt, workflow.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_steps WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to clear workflow steps: %w", err)
	}

	for _, step := range workflow.Steps {
		payloadJSON, marshalErr := marshalStepPayload(step)
		if marshalErr != nil {
			err = marshalErr

			return err
		}

		if step.CreatedAt.IsZero() {
			step.CreatedAt = now
		}

		step.WorkflowID = workflow.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_steps (
				workflow_id, id, order_index, name, step_type, payload, is_active, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			workflow.ID, step.ID, step.OrderIndex, step.Name, string(step.Type),
			payloadJSON, step.Active, step.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save workflow step %s: %w", step.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) IncrementCounter(ctx context.Context, id string, counter persistence.WorkflowCounter) error {
	var column string

	switch counter {
	case persistence.CounterEnrolled:
		column = "total_enrolled"
	case persistence.CounterCompleted:
		column = "total_completed"
	case persistence.CounterConverted:
		column = "total_converted"
	default:
		return fmt.Errorf("unknown workflow counter: %s", counter)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET "+column+" = "+column+" + 1, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_index, name, step_type, payload, is_active, created_at
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY order_index
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflow.Steps = make([]*models.WorkflowStep, 0)

	for rows.Next() {
		step := &models.WorkflowStep{WorkflowID: workflow.ID}

		var (
			stepType    string
			payloadJSON []byte
		)

		err = rows.Scan(&step.ID, &step.OrderIndex, &step.Name, &stepType, &payloadJSON, &step.Active, &step.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan workflow step: %w", err)
		}

		step.Type = models.StepType(stepType)

		if err := unmarshalStepPayload(step, payloadJSON); err != nil {
			return err
		}

		workflow.Steps = append(workflow.Steps, step)
	}

	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	var (
		status              string
		triggerType         string
		description         sql.NullString
		owner               sql.NullString
		triggerConfigJSON   []byte
		audienceFiltersJSON []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.Name, &description, &status, &triggerType,
		&triggerConfigJSON, &audienceFiltersJSON, &workflow.AllowReEntry,
		&workflow.ExitOnConversion, &workflow.ContinueOnPause,
		&workflow.TotalEnrolled, &workflow.TotalCompleted, &workflow.TotalConverted,
		&owner, &workflow.CreatedAt, &workflow.UpdatedAt, &workflow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Description = description.String
	workflow.Owner = owner.String
	workflow.Status = models.WorkflowStatus(status)
	workflow.TriggerType = models.TriggerType(triggerType)

	if len(triggerConfigJSON) > 0 {
		if err := json.Unmarshal(triggerConfigJSON, &workflow.TriggerConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
		}
	}

	if len(audienceFiltersJSON) > 0 {
		if err := json.Unmarshal(audienceFiltersJSON, &workflow.AudienceFilters); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audience filters: %w", err)
		}
	}

	return workflow, nil
}

func marshalStepPayload(step *models.WorkflowStep) ([]byte, error) {
	var payload any

	switch step.Type {
	case models.StepTypeSendMessage:
		payload = step.SendMessage
	case models.StepTypeWait:
		payload = step.Wait
	case models.StepTypeCondition:
		payload = step.Condition
	case models.StepTypeUpdateField:
		payload = step.UpdateField
	case models.StepTypeAssign:
		payload = step.Assign
	default:
		return nil, fmt.Errorf("step %s: unknown step type %q", step.ID, step.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step %s payload: %w", step.ID, err)
	}

	return data, nil
}

func unmarshalStepPayload(step *models.WorkflowStep, data []byte) error {
	var target any

	switch step.Type {
	case models.StepTypeSendMessage:
		step.SendMessage = &models.SendMessageStep{}
		target = step.SendMessage
	case models.StepTypeWait:
		step.Wait = &models.WaitStep{}
		target = step.Wait
	case models.StepTypeCondition:
		step.Condition = &models.ConditionStep{}
		target = step.Condition
	case models.StepTypeUpdateField:
		step.UpdateField = &models.UpdateFieldStep{}
		target = step.UpdateField
	case models.StepTypeAssign:
		step.Assign = &models.AssignStep{}
		target = step.Assign
	default:
		return fmt.Errorf("step %s: unknown step type %q", step.ID, step.Type)
	}

	if len(data) == 0 {
		return fmt.Errorf("step %s: empty %s payload", step.ID, step.Type)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal step %s payload: %w", step.ID, err)
	}

	return nil
}
