package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	"github.com/khanhnv2901/seca-scanner/internal/domain/target"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

func TestJobStoreAdmission(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, _ := job.NewJob("target-1", "http", "api:test")
			err := store.CreateIfIdle(ctx, j)
			if err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
				return
			}
			if !errors.Is(err, sharedErrors.ErrRateLimited) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if admitted != 1 {
		t.Fatalf("expected one admitted job, got %d", admitted)
	}

	active, err := store.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	next, _ := job.NewJob("target-1", "http", "api:test")
	var rl *sharedErrors.RateLimitedError
	if err := store.CreateIfIdle(ctx, next); !errors.As(err, &rl) || rl.RunningJobID != active.ID() {
		t.Fatalf("expected rate limit naming %s, got %v", active.ID(), err)
	}
}

func TestJobStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()

	j, _ := job.NewJob("target-1", "http", "api:test")
	_ = store.CreateIfIdle(ctx, j)
	_ = j.Start()
	if err := store.Update(ctx, j, job.StatusRunning); !errors.Is(err, sharedErrors.ErrInvalidTransition) {
		t.Fatalf("expected CAS failure, got %v", err)
	}
	if err := store.Update(ctx, j, job.StatusQueued); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := store.FindByID(ctx, j.ID())
	if got.Status() != job.StatusRunning {
		t.Fatalf("expected RUNNING, got %s", got.Status())
	}
	if _, err := store.FindByID(ctx, "nope"); !errors.Is(err, sharedErrors.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobStoreKeepsFinishedJobs(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore()

	var ids []string
	for i := 0; i < 5; i++ {
		j, _ := job.NewJob("target-1", "http", "api:test")
		if err := store.CreateIfIdle(ctx, j); err != nil {
			t.Fatalf("CreateIfIdle: %v", err)
		}
		_ = j.Fail(sharedErrors.CodeScanExecution, "x")
		if err := store.Update(ctx, j, job.StatusQueued); err != nil {
			t.Fatalf("Update: %v", err)
		}
		ids = append(ids, j.ID())
	}

	for _, id := range ids {
		got, err := store.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("finished job %s should stay retrievable: %v", id, err)
		}
		if got.Status() != job.StatusFailed {
			t.Fatalf("expected FAILED, got %s", got.Status())
		}
	}
	list, _ := store.List(ctx, job.ListFilter{})
	if len(list) != len(ids) || list[0].ID() != ids[len(ids)-1] {
		t.Fatalf("expected all %d jobs newest first, got %d", len(ids), len(list))
	}
}

func TestTargetStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewTargetStore()

	a, _ := target.NewTarget("https://example.com", "first")
	b, _ := target.NewTarget("https://EXAMPLE.com/", "second")

	first, _ := store.Upsert(ctx, a)
	second, _ := store.Upsert(ctx, b)
	if first.ID() != second.ID() || second.Description() != "first" {
		t.Fatalf("expected upsert to reuse the first target, got %s %q", second.ID(), second.Description())
	}
	list, _ := store.List(ctx)
	if len(list) != 1 {
		t.Fatalf("expected one target, got %d", len(list))
	}
	if _, err := store.FindByID(ctx, "nope"); !errors.Is(err, sharedErrors.ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}
