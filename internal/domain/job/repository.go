package job

import "context"

// ListFilter narrows job listings. An empty Statuses slice matches every job.
type ListFilter struct {
	Statuses []Status
	Limit    int
	Offset   int
}

// Repository defines the interface for job persistence
type Repository interface {
	// CreateIfIdle persists a queued job only when no job is QUEUED or RUNNING.
	// The check and the insert are one atomic step; on conflict it returns
	// *errors.RateLimitedError carrying the active job's id.
	CreateIfIdle(ctx context.Context, j *Job) error

	// Update persists a transition. It succeeds only if the stored status is
	// still from, making every transition a compare-and-set.
	Update(ctx context.Context, j *Job, from Status) error

	// FindByID retrieves a job by its ID
	FindByID(ctx context.Context, id string) (*Job, error)

	// FindActive returns the QUEUED or RUNNING job, or ErrJobNotFound.
	FindActive(ctx context.Context) (*Job, error)

	// List returns jobs newest first.
	List(ctx context.Context, filter ListFilter) ([]*Job, error)
}
