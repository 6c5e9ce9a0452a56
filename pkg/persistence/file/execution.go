package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

type ExecutionRepository struct {
	root string
	mu   sync.RWMutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (r *ExecutionRepository) dir() string {
	return filepath.Join(r.root, "executions")
}

func (r *ExecutionRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution := &models.WorkflowExecution{}

	err := readDocument(r.path(id), execution)
	if os.IsNotExist(err) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, err
	}

	return execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if execution.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate execution ID: %w", err)
		}

		execution.ID = id.String()
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = now
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = now
	}

	execution.UpdatedAt = now

	return writeDocument(r.path(execution.ID), execution)
}

func (r *ExecutionRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowExecution, error) {
	all, err := r.all()
	if err != nil {
		return nil, err
	}

	due := make([]*models.WorkflowExecution, 0)

	for _, execution := range all {
		if execution.Status != models.ExecutionStatusPending && execution.Status != models.ExecutionStatusRunning {
			continue
		}

		if execution.NextActionAt == nil || execution.NextActionAt.After(now) {
			continue
		}

		due = append(due, execution)
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextActionAt.Before(*due[j].NextActionAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due, nil
}

func (r *ExecutionRepository) NonTerminalExists(ctx context.Context, workflowID, leadID string) (bool, error) {
	all, err := r.all()
	if err != nil {
		return false, err
	}

	for _, execution := range all {
		if execution.WorkflowID == workflowID && execution.LeadID == leadID && !execution.Status.IsTerminal() {
			return true, nil
		}
	}

	return false, nil
}

func (r *ExecutionRepository) Exists(ctx context.Context, workflowID, leadID string) (bool, error) {
	all, err := r.all()
	if err != nil {
		return false, err
	}

	for _, execution := range all {
		if execution.WorkflowID == workflowID && execution.LeadID == leadID {
			return true, nil
		}
	}

	return false, nil
}

func (r *ExecutionRepository) all() ([]*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths, err := listDocuments(r.dir())
	if err != nil {
		return nil, err
	}

	executions := make([]*models.WorkflowExecution, 0, len(paths))

	for _, path := range paths {
		execution := &models.WorkflowExecution{}
		if err := readDocument(path, execution); err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, nil
}
