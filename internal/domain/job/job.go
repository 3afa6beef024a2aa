package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// Job is one requested scan of a target. It is the aggregate whose state
// transitions the lifecycle service drives.
type Job struct {
	id           string
	targetID     string
	scanType     string
	requestedBy  string
	status       Status
	createdAt    time.Time
	startedAt    time.Time
	finishedAt   time.Time
	resolvedIPs  []string
	ipsRecorded  bool
	errorCode    string
	errorMessage string
	summary      json.RawMessage
}

// Status represents the lifecycle state of a job
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// ActiveStatuses are the non-terminal states; at most one job may hold one of them.
var ActiveStatuses = []Status{StatusQueued, StatusRunning}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown job status %q", sharedErrors.ErrValidation, raw)
}

// NewJob creates a queued job
func NewJob(targetID, scanType, requestedBy string) (*Job, error) {
	if targetID == "" {
		return nil, sharedErrors.ErrEmptyTargetID
	}
	if requestedBy == "" {
		return nil, sharedErrors.ErrEmptyRequester
	}

	return &Job{
		id:          uuid.NewString(),
		targetID:    targetID,
		scanType:    scanType,
		requestedBy: requestedBy,
		status:      StatusQueued,
		createdAt:   time.Now().UTC(),
	}, nil
}

// Snapshot is the persisted form of a job, used by stores to rebuild it.
type Snapshot struct {
	ID           string
	TargetID     string
	ScanType     string
	RequestedBy  string
	Status       Status
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	ResolvedIPs  []string
	IPsRecorded  bool
	ErrorCode    string
	ErrorMessage string
	Summary      json.RawMessage
}

// Reconstruct creates a job from persisted data
func Reconstruct(s Snapshot) *Job {
	return &Job{
		id:           s.ID,
		targetID:     s.TargetID,
		scanType:     s.ScanType,
		requestedBy:  s.RequestedBy,
		status:       s.Status,
		createdAt:    s.CreatedAt,
		startedAt:    s.StartedAt,
		finishedAt:   s.FinishedAt,
		resolvedIPs:  append([]string(nil), s.ResolvedIPs...),
		ipsRecorded:  s.IPsRecorded,
		errorCode:    s.ErrorCode,
		errorMessage: s.ErrorMessage,
		summary:      append(json.RawMessage(nil), s.Summary...),
	}
}

// Snapshot exports the job state for persistence.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		ID:           j.id,
		TargetID:     j.targetID,
		ScanType:     j.scanType,
		RequestedBy:  j.requestedBy,
		Status:       j.status,
		CreatedAt:    j.createdAt,
		StartedAt:    j.startedAt,
		FinishedAt:   j.finishedAt,
		ResolvedIPs:  j.ResolvedIPs(),
		IPsRecorded:  j.ipsRecorded,
		ErrorCode:    j.errorCode,
		ErrorMessage: j.errorMessage,
		Summary:      j.Summary(),
	}
}

// Business methods

// RecordResolvedIPs stores the pre-flight resolution result. It may be called
// exactly once and only before the job starts.
func (j *Job) RecordResolvedIPs(ips []string) error {
	if j.ipsRecorded {
		return sharedErrors.ErrResolvedIPsAlreadySet
	}
	if j.status != StatusQueued {
		return fmt.Errorf("%w: resolved addresses must be recorded while queued", sharedErrors.ErrInvalidTransition)
	}
	j.resolvedIPs = append(make([]string, 0, len(ips)), ips...)
	j.ipsRecorded = true
	return nil
}

// Start marks the job as running
func (j *Job) Start() error {
	if j.status != StatusQueued {
		return fmt.Errorf("%w: job can only be started from %s, is %s", sharedErrors.ErrInvalidTransition, StatusQueued, j.status)
	}
	j.status = StatusRunning
	j.startedAt = time.Now().UTC()
	return nil
}

// Succeed marks the job as succeeded with its serialized summary
func (j *Job) Succeed(summary json.RawMessage) error {
	if j.status != StatusRunning {
		return fmt.Errorf("%w: job can only succeed from %s, is %s", sharedErrors.ErrInvalidTransition, StatusRunning, j.status)
	}
	j.status = StatusSucceeded
	j.summary = append(json.RawMessage(nil), summary...)
	j.finishedAt = time.Now().UTC()
	return nil
}

// Fail marks the job as failed. Queued jobs fail on pre-flight rejection,
// running jobs on execution errors.
func (j *Job) Fail(code, message string) error {
	if j.status.IsTerminal() {
		return fmt.Errorf("%w: cannot fail a %s job", sharedErrors.ErrInvalidTransition, j.status)
	}
	j.status = StatusFailed
	j.errorCode = code
	j.errorMessage = message
	j.finishedAt = time.Now().UTC()
	return nil
}

// Getters

func (j *Job) ID() string {
	return j.id
}

func (j *Job) TargetID() string {
	return j.targetID
}

func (j *Job) ScanType() string {
	return j.scanType
}

func (j *Job) RequestedBy() string {
	return j.requestedBy
}

func (j *Job) Status() Status {
	return j.status
}

func (j *Job) CreatedAt() time.Time {
	return j.createdAt
}

func (j *Job) StartedAt() time.Time {
	return j.startedAt
}

func (j *Job) FinishedAt() time.Time {
	return j.finishedAt
}

// ResolvedIPs returns nil until the pre-flight check has run, then the
// recorded (possibly empty) address list.
func (j *Job) ResolvedIPs() []string {
	if !j.ipsRecorded {
		return nil
	}
	return append(make([]string, 0, len(j.resolvedIPs)), j.resolvedIPs...)
}

func (j *Job) IPsRecorded() bool {
	return j.ipsRecorded
}

func (j *Job) ErrorCode() string {
	return j.errorCode
}

func (j *Job) ErrorMessage() string {
	return j.errorMessage
}

func (j *Job) Summary() json.RawMessage {
	if len(j.summary) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), j.summary...)
}
