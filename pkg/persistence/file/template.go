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

type TemplateRepository struct {
	root string
	mu   sync.RWMutex
}

func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (r *TemplateRepository) path(id string) string {
	return filepath.Join(r.root, "templates", id+".json")
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.CommunicationTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	template := &models.CommunicationTemplate{}

	err := readDocument(r.path(id), template)
	if os.IsNotExist(err) {
		return nil, persistence.ErrTemplateNotFound
	}

	if err != nil {
		return nil, err
	}

	return template, nil
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.CommunicationTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	return writeDocument(r.path(template.ID), template)
}
