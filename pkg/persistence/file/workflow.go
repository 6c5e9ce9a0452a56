package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository stores one JSON document per workflow, steps inlined.
type WorkflowRepository struct {
	root string
	mu   sync.RWMutex
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (r *WorkflowRepository) dir() string {
	return filepath.Join(r.root, "workflows")
}

func (r *WorkflowRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *WorkflowRepository) GetAll(ctx context.Context) ([]*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths, err := listDocuments(r.dir())
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(paths))

	for _, path := range paths {
		workflow := &models.Workflow{}
		if err := readDocument(path, workflow); err != nil {
			return nil, err
		}

		if workflow.DeletedAt != nil {
			continue
		}

		workflow.SortSteps()
		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.getByIDLocked(id)
}

func (r *WorkflowRepository) getByIDLocked(id string) (*models.Workflow, error) {
	workflow := &models.Workflow{}

	err := readDocument(r.path(id), workflow)
	if os.IsNotExist(err) {
		return nil, persistence.ErrWorkflowNotFound
	}

	if err != nil {
		return nil, err
	}

	if workflow.DeletedAt != nil {
		return nil, persistence.ErrWorkflowNotFound
	}

	workflow.SortSteps()

	return workflow, nil
}

func (r *WorkflowRepository) GetByStatus(ctx context.Context, status models.WorkflowStatus) ([]*models.Workflow, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Workflow, 0, len(all))

	for _, workflow := range all {
		if workflow.Status == status {
			matched = append(matched, workflow)
		}
	}

	return matched, nil
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return writeDocument(r.path(workflow.ID), workflow)
}

func (r *WorkflowRepository) IncrementCounter(ctx context.Context, id string, counter persistence.WorkflowCounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, err := r.getByIDLocked(id)
	if err != nil {
		return err
	}

	switch counter {
	case persistence.CounterEnrolled:
		workflow.TotalEnrolled++
	case persistence.CounterCompleted:
		workflow.TotalCompleted++
	case persistence.CounterConverted:
		workflow.TotalConverted++
	default:
		return fmt.Errorf("unknown workflow counter: %s", counter)
	}

	workflow.UpdatedAt = time.Now().UTC()

	return writeDocument(r.path(id), workflow)
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	workflow, err := r.getByIDLocked(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	workflow.DeletedAt = &now
	workflow.UpdatedAt = now

	return writeDocument(r.path(id), workflow)
}
