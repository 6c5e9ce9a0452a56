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

type MessageLogRepository struct {
	root string
	mu   sync.RWMutex
}

func NewMessageLogRepository(root string) *MessageLogRepository {
	return &MessageLogRepository{root: root}
}

func (r *MessageLogRepository) dir() string {
	return filepath.Join(r.root, "message_logs")
}

func (r *MessageLogRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *MessageLogRepository) GetByID(ctx context.Context, id string) (*models.MessageLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := &models.MessageLog{}

	err := readDocument(r.path(id), entry)
	if os.IsNotExist(err) {
		return nil, persistence.ErrMessageLogNotFound
	}

	if err != nil {
		return nil, err
	}

	return entry, nil
}

func (r *MessageLogRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.MessageLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths, err := listDocuments(r.dir())
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		entry := &models.MessageLog{}
		if err := readDocument(path, entry); err != nil {
			return nil, err
		}

		if entry.ProviderMessageID != "" && entry.ProviderMessageID == providerMessageID {
			return entry, nil
		}
	}

	return nil, persistence.ErrMessageLogNotFound
}

func (r *MessageLogRepository) Save(ctx context.Context, entry *models.MessageLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate message log ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	return writeDocument(r.path(entry.ID), entry)
}
