package leadservice

import (
	"context"
	"sort"
	"sync"
)

// MemoryService is an in-process lead store for tests.
type MemoryService struct {
	mu    sync.RWMutex
	leads map[string]map[string]any
}

func NewMemoryService() *MemoryService {
	return &MemoryService{leads: make(map[string]map[string]any)}
}

func (s *MemoryService) SetLead(leadID string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	s.leads[leadID] = copied
}

func (s *MemoryService) ListLeadIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.leads))
	for id := range s.leads {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

func (s *MemoryService) GetLeadFields(_ context.Context, leadID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.leads[leadID]
	if !ok {
		return nil, ErrLeadNotFound
	}

	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	return copied, nil
}

func (s *MemoryService) ApplyFieldUpdate(_ context.Context, leadID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields, ok := s.leads[leadID]
	if !ok {
		return ErrLeadNotFound
	}

	for k, v := range updates {
		fields[k] = v
	}

	return nil
}

func (s *MemoryService) AssignLead(_ context.Context, leadID, userID, team string) error {
	updates := map[string]any{}
	if userID != "" {
		updates["assigned_to_user_id"] = userID
	}

	if team != "" {
		updates["assigned_team"] = team
	}

	return s.ApplyFieldUpdate(context.Background(), leadID, updates)
}
