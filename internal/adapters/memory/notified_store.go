package memory

import (
	"context"
	"sync"

	"github.com/samirrijal/ghostnotes/internal/core/domain"
)

// NotifiedSetStore keeps notification history in process memory.
type NotifiedSetStore struct {
	mu   sync.Mutex
	sets map[string]*domain.NotifiedSet
}

// NewNotifiedSetStore creates an empty store.
func NewNotifiedSetStore() *NotifiedSetStore {
	return &NotifiedSetStore{sets: make(map[string]*domain.NotifiedSet)}
}

func (s *NotifiedSetStore) Get(_ context.Context, userID string) (*domain.NotifiedSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[userID]
	if !ok {
		return nil, nil
	}
	return set.Clone(), nil
}

func (s *NotifiedSetStore) Set(_ context.Context, userID string, set *domain.NotifiedSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[userID] = set.Clone()
	return nil
}
