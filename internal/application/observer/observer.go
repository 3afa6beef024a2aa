// Package observer watches admitted jobs and notifies their requester once
// they reach a terminal state.
package observer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	"github.com/khanhnv2901/seca-scanner/internal/infrastructure/notify"
	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// JobReader is the part of the job store the observer polls.
type JobReader interface {
	FindByID(ctx context.Context, id string) (*job.Job, error)
	List(ctx context.Context, filter job.ListFilter) ([]*job.Job, error)
}

// Observer polls each observed job on its own goroutine.
type Observer struct {
	jobs     JobReader
	notifier notify.Notifier
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]*observation
}

type observation struct {
	cancel context.CancelFunc
}

// Option customizes an Observer.
type Option func(*Observer)

// WithPolling sets the poll interval and the observation deadline.
func WithPolling(interval, timeout time.Duration) Option {
	return func(o *Observer) {
		if interval > 0 {
			o.interval = interval
		}
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithLogger sets the observer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New(jobs JobReader, notifier notify.Notifier, opts ...Option) *Observer {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Observer{
		jobs:     jobs,
		notifier: notifier,
		interval: constants.PollInterval,
		timeout:  constants.PollTimeout,
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[string]*observation),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Recover resumes observation of jobs that were QUEUED or RUNNING when the
// previous process stopped. Jobs whose requester cannot be parsed are
// skipped with a warning.
func (o *Observer) Recover(ctx context.Context) (int, error) {
	jobs, err := o.jobs.List(ctx, job.ListFilter{
		Statuses: job.ActiveStatuses,
		Limit:    constants.RecoveryBatchSize,
	})
	if err != nil {
		return 0, err
	}
	if len(jobs) > 0 {
		o.logger.Info("recovering in-progress jobs", zap.Int("count", len(jobs)))
	}

	resumed := 0
	for _, j := range jobs {
		dest, err := notify.ParseDestination(j.RequestedBy())
		if err != nil {
			o.logger.Warn("cannot resume job observation",
				zap.String("job_id", j.ID()),
				zap.String("requested_by", j.RequestedBy()),
				zap.Error(err))
			continue
		}
		if o.Observe(j.ID(), dest) {
			resumed++
		}
	}
	return resumed, nil
}

// Observe starts watching jobID. It returns false if the job is already
// observed or the observer is closed.
func (o *Observer) Observe(jobID string, dest notify.Destination) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx.Err() != nil {
		return false
	}
	if _, ok := o.active[jobID]; ok {
		o.logger.Debug("job already observed", zap.String("job_id", jobID))
		return false
	}

	ctx, cancel := context.WithCancel(o.ctx)
	obs := &observation{cancel: cancel}
	o.active[jobID] = obs
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(jobID, obs)
		o.watch(ctx, jobID, dest)
	}()
	return true
}

// Stop ends observation of jobID without notifying.
func (o *Observer) Stop(jobID string) {
	o.mu.Lock()
	obs, ok := o.active[jobID]
	delete(o.active, jobID)
	o.mu.Unlock()
	if ok {
		obs.cancel()
	}
}

// release drops obs from the observation set unless it was already replaced.
func (o *Observer) release(jobID string, obs *observation) {
	o.mu.Lock()
	if o.active[jobID] == obs {
		delete(o.active, jobID)
	}
	o.mu.Unlock()
	obs.cancel()
}

// Observing reports whether jobID is being watched.
func (o *Observer) Observing(jobID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[jobID]
	return ok
}

// Close stops every observation and waits for the goroutines to exit.
func (o *Observer) Close() {
	o.cancel()
	o.wg.Wait()
}

func (o *Observer) watch(ctx context.Context, jobID string, dest notify.Destination) {
	deadline := time.NewTimer(o.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	logger := o.logger.With(zap.String("job_id", jobID), zap.String("destination", dest.String()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			o.deliver(dest, notify.Event{JobID: jobID, TimedOut: true}, logger)
			return
		case <-ticker.C:
		}

		j, err := o.jobs.FindByID(ctx, jobID)
		if errors.Is(err, sharedErrors.ErrJobNotFound) {
			logger.Warn("observed job disappeared")
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("polling error", zap.Error(err))
			}
			continue
		}
		if !j.Status().IsTerminal() {
			continue
		}

		o.deliver(dest, notify.Event{
			JobID:        j.ID(),
			TargetID:     j.TargetID(),
			Status:       string(j.Status()),
			Summary:      j.Summary(),
			ErrorCode:    j.ErrorCode(),
			ErrorMessage: j.ErrorMessage(),
		}, logger)
		return
	}
}

func (o *Observer) deliver(dest notify.Destination, ev notify.Event, logger *zap.Logger) {
	if err := o.notifier.Notify(o.ctx, dest, ev); err != nil {
		logger.Error("failed to deliver notification", zap.Error(err))
	}
}
