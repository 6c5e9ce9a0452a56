// Package persistence provides the data storage abstraction for workflows,
// templates, executions, and message logs.
package persistence

import (
	"context"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
)

// WorkflowCounter names a workflow rollup counter.
type WorkflowCounter string

const (
	CounterEnrolled  WorkflowCounter = "total_enrolled"
	CounterCompleted WorkflowCounter = "total_completed"
	CounterConverted WorkflowCounter = "total_converted"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TemplateRepository() TemplateRepository
	ExecutionRepository() ExecutionRepository
	MessageLogRepository() MessageLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	GetByStatus(ctx context.Context, status models.WorkflowStatus) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	IncrementCounter(ctx context.Context, id string, counter WorkflowCounter) error
	Delete(ctx context.Context, id string) error
}

type TemplateRepository interface {
	GetByID(ctx context.Context, id string) (*models.CommunicationTemplate, error)
	Save(ctx context.Context, template *models.CommunicationTemplate) error
}

type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	Save(ctx context.Context, execution *models.WorkflowExecution) error

	// Due returns executions ready for a scheduling tick: status Pending or
	// Running with next_action_at at or before now. Event-parked executions
	// (next_action_at null) are excluded.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error)

	// NonTerminalExists reports whether the lead already has a pending or
	// running enrollment in the workflow.
	NonTerminalExists(ctx context.Context, workflowID, leadID string) (bool, error)

	// Exists reports whether the lead was ever enrolled in the workflow,
	// terminal or not. Polled triggers use it to enroll each lead once.
	Exists(ctx context.Context, workflowID, leadID string) (bool, error)
}

type MessageLogRepository interface {
	GetByID(ctx context.Context, id string) (*models.MessageLog, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.MessageLog, error)
	Save(ctx context.Context, entry *models.MessageLog) error
}
