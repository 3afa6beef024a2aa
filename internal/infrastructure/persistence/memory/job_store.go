// Package memory provides mutex-guarded in-process stores with the same
// contracts as the SQLite stores.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// JobStore implements job.Repository. Jobs are kept for the life of the
// process.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]job.Snapshot
	order []string // insertion order, oldest first
}

var _ job.Repository = (*JobStore)(nil)

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]job.Snapshot)}
}

func (s *JobStore) CreateIfIdle(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active, ok := s.activeLocked(); ok {
		return &sharedErrors.RateLimitedError{RunningJobID: active.ID}
	}
	if _, dup := s.jobs[j.ID()]; dup {
		return fmt.Errorf("%w: duplicate job id %s", sharedErrors.ErrRepositoryOperation, j.ID())
	}
	s.jobs[j.ID()] = j.Snapshot()
	s.order = append(s.order, j.ID())
	return nil
}

func (s *JobStore) Update(ctx context.Context, j *job.Job, from job.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[j.ID()]
	if !ok {
		return sharedErrors.ErrJobNotFound
	}
	if current.Status != from {
		return fmt.Errorf("%w: job %s is %s, expected %s", sharedErrors.ErrInvalidTransition, j.ID(), current.Status, from)
	}
	s.jobs[j.ID()] = j.Snapshot()
	return nil
}

func (s *JobStore) FindByID(ctx context.Context, id string) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.jobs[id]
	if !ok {
		return nil, sharedErrors.ErrJobNotFound
	}
	return job.Reconstruct(snap), nil
}

func (s *JobStore) FindActive(ctx context.Context) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.activeLocked()
	if !ok {
		return nil, sharedErrors.ErrJobNotFound
	}
	return job.Reconstruct(snap), nil
}

// List returns jobs newest first.
func (s *JobStore) List(ctx context.Context, filter job.ListFilter) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[job.Status]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		want[st] = true
	}

	out := make([]*job.Job, 0)
	skipped := 0
	for i := len(s.order) - 1; i >= 0; i-- {
		snap := s.jobs[s.order[i]]
		if len(want) > 0 && !want[snap.Status] {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, job.Reconstruct(snap))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *JobStore) activeLocked() (job.Snapshot, bool) {
	for _, id := range s.order {
		if snap := s.jobs[id]; !snap.Status.IsTerminal() {
			return snap, true
		}
	}
	return job.Snapshot{}, false
}
