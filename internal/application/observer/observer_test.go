package observer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/notify"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/persistence/memory"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
	dests  []notify.Destination
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) Notify(ctx context.Context, dest notify.Destination, ev notify.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.dests = append(r.dests, dest)
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recorder) wait(t *testing.T) notify.Event {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func queuedJob(t *testing.T, store *memory.JobStore, requestedBy string) *job.Job {
	t.Helper()
	j, err := job.NewJob("target-1", "http", requestedBy)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.CreateIfIdle(context.Background(), j); err != nil {
		t.Fatal(err)
	}
	return j
}

func TestObserveNotifiesOnTerminalState(t *testing.T) {
	store := memory.NewJobStore()
	rec := newRecorder()
	o := New(store, rec, WithPolling(10*time.Millisecond, 5*time.Second), WithLogger(zaptest.NewLogger(t)))
	defer o.Close()

	j := queuedJob(t, store, "cli:alice")
	dest := notify.Destination{Channel: notify.ChannelCLI, Address: "alice"}
	if !o.Observe(j.ID(), dest) {
		t.Fatal("expected observation to start")
	}
	if o.Observe(j.ID(), dest) {
		t.Fatal("expected duplicate observation to be ignored")
	}

	_ = j.Fail(sharedErrors.CodePrivateAddress, "blocked")
	if err := store.Update(context.Background(), j, job.StatusQueued); err != nil {
		t.Fatal(err)
	}

	ev := rec.wait(t)
	if ev.JobID != j.ID() || ev.Status != "FAILED" || ev.ErrorCode != sharedErrors.CodePrivateAddress || ev.TargetID != "target-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
	waitUntil(t, func() bool { return !o.Observing(j.ID()) })

	time.Sleep(50 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", rec.count())
	}
}

func TestObserveTimesOut(t *testing.T) {
	store := memory.NewJobStore()
	rec := newRecorder()
	o := New(store, rec, WithPolling(10*time.Millisecond, 60*time.Millisecond), WithLogger(zaptest.NewLogger(t)))
	defer o.Close()

	j := queuedJob(t, store, "api:client")
	o.Observe(j.ID(), notify.Destination{Channel: notify.ChannelAPI, Address: "client"})

	ev := rec.wait(t)
	if !ev.TimedOut || ev.JobID != j.ID() {
		t.Fatalf("expected timeout notice, got %+v", ev)
	}
	waitUntil(t, func() bool { return !o.Observing(j.ID()) })

	got, _ := store.FindByID(context.Background(), j.ID())
	if got.Status() != job.StatusQueued {
		t.Fatalf("timeout must not change job state, got %s", got.Status())
	}
}

func TestStopEndsObservationSilently(t *testing.T) {
	store := memory.NewJobStore()
	rec := newRecorder()
	o := New(store, rec, WithPolling(10*time.Millisecond, time.Minute), WithLogger(zaptest.NewLogger(t)))
	defer o.Close()

	j := queuedJob(t, store, "cli:a")
	o.Observe(j.ID(), notify.Destination{Channel: notify.ChannelCLI, Address: "a"})
	o.Stop(j.ID())
	if o.Observing(j.ID()) {
		t.Fatal("expected observation to stop")
	}

	_ = j.Fail(sharedErrors.CodeScanExecution, "x")
	_ = store.Update(context.Background(), j, job.StatusQueued)
	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("expected no notification after Stop, got %d", rec.count())
	}
}

func TestRecoverSkipsUnparseableRequesters(t *testing.T) {
	store := memory.NewJobStore()
	rec := newRecorder()
	o := New(store, rec, WithPolling(10*time.Millisecond, time.Minute), WithLogger(zaptest.NewLogger(t)))
	defer o.Close()

	j := queuedJob(t, store, "12345")
	n, err := o.Recover(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	if o.Observing(j.ID()) {
		t.Fatal("unparseable requester must not be observed")
	}

	_ = j.Fail(sharedErrors.CodeScanExecution, "x")
	_ = store.Update(context.Background(), j, job.StatusQueued)

	k := queuedJob(t, store, "ws:session")
	n, err = o.Recover(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	if !o.Observing(k.ID()) {
		t.Fatal("expected recovered job to be observed")
	}
	if n, _ := o.Recover(context.Background()); n != 0 {
		t.Fatalf("expected recovery to be idempotent, resumed %d", n)
	}
}

type flakyReader struct {
	*memory.JobStore
	failures int32
}

func (f *flakyReader) FindByID(ctx context.Context, id string) (*job.Job, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, errors.New("database is locked")
	}
	return f.JobStore.FindByID(ctx, id)
}

func TestObserveToleratesPollingErrors(t *testing.T) {
	store := memory.NewJobStore()
	reader := &flakyReader{JobStore: store, failures: 3}
	rec := newRecorder()
	o := New(reader, rec, WithPolling(10*time.Millisecond, 5*time.Second), WithLogger(zaptest.NewLogger(t)))
	defer o.Close()

	j := queuedJob(t, store, "cli:a")
	_ = j.Fail(sharedErrors.CodeScanExecution, "x")
	_ = store.Update(context.Background(), j, job.StatusQueued)

	o.Observe(j.ID(), notify.Destination{Channel: notify.ChannelCLI, Address: "a"})
	if ev := rec.wait(t); ev.Status != "FAILED" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestCloseRejectsNewObservations(t *testing.T) {
	o := New(memory.NewJobStore(), newRecorder())
	o.Close()
	if o.Observe("job", notify.Destination{Channel: notify.ChannelCLI, Address: "a"}) {
		t.Fatal("expected closed observer to reject observations")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
