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

type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , lead_id
  , status
  , current_step_id
  , next_action_at
  , started_at
  , completed_at
  , execution_log
  , retry_count
  , error_message
  , created_at
  , updated_at
`

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	now := time.Now().UTC()

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = now
	}

	execution.UpdatedAt = now

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	logJSON, err := json.Marshal(execution.Log)
	if err != nil {
		return fmt.Errorf("failed to marshal execution log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (
			id, workflow_id, lead_id, status, current_step_id, next_action_at,
			started_at, completed_at, execution_log, retry_count,
			error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_step_id = EXCLUDED.current_step_id,
			next_action_at = EXCLUDED.next_action_at,
			completed_at = EXCLUDED.completed_at,
			execution_log = EXCLUDED.execution_log,
			retry_count = EXCLUDED.retry_count,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`,
		execution.ID, execution.WorkflowID, execution.LeadID,
		string(execution.Status), execution.CurrentStepID, execution.NextActionAt,
		execution.StartedAt, execution.CompletedAt, logJSON,
		execution.RetryCount, nullableString(execution.ErrorMessage),
		execution.CreatedAt, execution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM workflow_executions
		WHERE status IN ('PENDING', 'RUNNING')
		  AND next_action_at IS NOT NULL
		  AND next_action_at <= $1
		ORDER BY next_action_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

func (r *ExecutionRepository) NonTerminalExists(ctx context.Context, workflowID, leadID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM workflow_executions
			WHERE workflow_id = $1
			  AND lead_id = $2
			  AND status IN ('PENDING', 'RUNNING')
		)
	`, workflowID, leadID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing enrollment: %w", err)
	}

	return exists, nil
}

func (r *ExecutionRepository) Exists(ctx context.Context, workflowID, leadID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM workflow_executions
			WHERE workflow_id = $1
			  AND lead_id = $2
		)
	`, workflowID, leadID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment history: %w", err)
	}

	return exists, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}

	var (
		status       string
		errorMessage sql.NullString
		logJSON      []byte
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.LeadID, &status,
		&execution.CurrentStepID, &execution.NextActionAt, &execution.StartedAt,
		&execution.CompletedAt, &logJSON, &execution.RetryCount,
		&errorMessage, &execution.CreatedAt, &execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)
	execution.ErrorMessage = errorMessage.String

	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &execution.Log); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution log: %w", err)
		}
	}

	return execution, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
