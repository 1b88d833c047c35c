package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/sideline-chat/sideline/internal/domain"
)

// memoryStore implements Store with an in-process map. Used for tests and
// single-instance deployments without Redis.
type memoryStore struct {
	mu       sync.RWMutex
	statuses map[string]domain.Status
}

// NewMemoryStore creates an in-memory presence store.
func NewMemoryStore() Store {
	return &memoryStore{statuses: make(map[string]domain.Status)}
}

func (s *memoryStore) Get(_ context.Context, userID string) (domain.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status, ok := s.statuses[userID]; ok {
		return status, nil
	}
	return domain.StatusAvailable, nil
}

func (s *memoryStore) Set(_ context.Context, userID string, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid presence status: %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[userID] = status
	return nil
}

func (s *memoryStore) Close() error {
	return nil
}
