package memory

import (
	"context"
	"sync"

	"github.com/khanhnv2901/seca-scanner/internal/domain/target"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// TargetStore implements target.Repository.
type TargetStore struct {
	mu      sync.RWMutex
	byID    map[string]*target.Target
	byURL   map[string]*target.Target
	ordered []*target.Target
}

var _ target.Repository = (*TargetStore)(nil)

func NewTargetStore() *TargetStore {
	return &TargetStore{
		byID:  make(map[string]*target.Target),
		byURL: make(map[string]*target.Target),
	}
}

func (s *TargetStore) Upsert(ctx context.Context, t *target.Target) (*target.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byURL[t.BaseURL()]; ok {
		return clone(existing), nil
	}
	stored := clone(t)
	s.byID[stored.ID()] = stored
	s.byURL[stored.BaseURL()] = stored
	s.ordered = append(s.ordered, stored)
	return clone(stored), nil
}

func (s *TargetStore) FindByID(ctx context.Context, id string) (*target.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, sharedErrors.ErrTargetNotFound
	}
	return clone(t), nil
}

func (s *TargetStore) List(ctx context.Context) ([]*target.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*target.Target, 0, len(s.ordered))
	for _, t := range s.ordered {
		out = append(out, clone(t))
	}
	return out, nil
}

func clone(t *target.Target) *target.Target {
	return target.Reconstruct(t.ID(), t.BaseURL(), t.Description(), t.CreatedAt())
}
