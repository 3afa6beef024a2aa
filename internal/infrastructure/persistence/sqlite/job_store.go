package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/khanhnv2901/seca-scanner/internal/domain/job"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

const jobColumns = `id, target_id, scan_type, requested_by, status, created_at, started_at,
	finished_at, resolved_ips, error_code, error_message, summary`

// JobStore implements job.Repository.
type JobStore struct {
	db *sql.DB

	// onConflict runs after a rejected insert; tests use it to finish the
	// active job at that point.
	onConflict func()
}

// NewJobStore returns a store backed by d.
func NewJobStore(d *DB) *JobStore {
	return &JobStore{db: d.db}
}

var _ job.Repository = (*JobStore)(nil)

// admissionAttempts bounds retries when the active job finishes between a
// rejected insert and the lookup of its id.
const admissionAttempts = 2

// CreateIfIdle inserts j unless a job is already QUEUED or RUNNING. The
// existence check is part of the INSERT, so concurrent callers cannot both
// succeed.
func (s *JobStore) CreateIfIdle(ctx context.Context, j *job.Job) error {
	row, err := toRow(j)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		inserted, err := s.insertIfIdle(ctx, row)
		if err != nil || inserted {
			return err
		}
		if s.onConflict != nil {
			s.onConflict()
		}

		active, err := s.FindActive(ctx)
		if err == nil {
			return &sharedErrors.RateLimitedError{RunningJobID: active.ID()}
		}
		if !errors.Is(err, sharedErrors.ErrJobNotFound) {
			return err
		}
		// The active job finished in between; the slot is free again.
		if attempt == admissionAttempts {
			return fmt.Errorf("%w: job admission kept conflicting", sharedErrors.ErrRepositoryOperation)
		}
	}
}

func (s *JobStore) insertIfIdle(ctx context.Context, row jobRow) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM jobs WHERE status IN (?, ?))`,
		row.id, row.targetID, row.scanType, row.requestedBy, row.status, row.createdAt, row.startedAt,
		row.finishedAt, row.resolvedIPs, row.errorCode, row.errorMessage, row.summary,
		string(job.StatusQueued), string(job.StatusRunning),
	)
	if err != nil {
		return false, fmt.Errorf("%w: insert job: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return n == 1, nil
}

// Update writes j if the stored status is still from.
func (s *JobStore) Update(ctx context.Context, j *job.Job, from job.Status) error {
	row, err := toRow(j)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, started_at = ?, finished_at = ?, resolved_ips = ?,
			error_code = ?, error_message = ?, summary = ?
		WHERE id = ? AND status = ?`,
		row.status, row.startedAt, row.finishedAt, row.resolvedIPs,
		row.errorCode, row.errorMessage, row.summary,
		row.id, string(from),
	)
	if err != nil {
		return fmt.Errorf("%w: update job: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	if n == 1 {
		return nil
	}

	current, err := s.FindByID(ctx, j.ID())
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s, expected %s", sharedErrors.ErrInvalidTransition, j.ID(), current.Status(), from)
}

// FindByID returns ErrJobNotFound for unknown ids.
func (s *JobStore) FindByID(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sharedErrors.ErrJobNotFound
	}
	return j, err
}

// FindActive returns the QUEUED or RUNNING job.
func (s *JobStore) FindActive(ctx context.Context) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN (?, ?)
		ORDER BY created_at ASC LIMIT 1`,
		string(job.StatusQueued), string(job.StatusRunning),
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sharedErrors.ErrJobNotFound
	}
	return j, err
}

// List returns jobs newest first.
func (s *JobStore) List(ctx context.Context, filter job.ListFilter) ([]*job.Job, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + jobColumns + ` FROM jobs`)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query.WriteString(` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`)
	}
	query.WriteString(` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`)
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	defer rows.Close()

	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return jobs, nil
}

type jobRow struct {
	id           string
	targetID     string
	scanType     string
	requestedBy  string
	status       string
	createdAt    sql.NullString
	startedAt    sql.NullString
	finishedAt   sql.NullString
	resolvedIPs  sql.NullString
	errorCode    sql.NullString
	errorMessage sql.NullString
	summary      sql.NullString
}

func toRow(j *job.Job) (jobRow, error) {
	snap := j.Snapshot()
	row := jobRow{
		id:          snap.ID,
		targetID:    snap.TargetID,
		scanType:    snap.ScanType,
		requestedBy: snap.RequestedBy,
		status:      string(snap.Status),
		createdAt:   formatTime(snap.CreatedAt),
		startedAt:   formatTime(snap.StartedAt),
		finishedAt:  formatTime(snap.FinishedAt),
	}
	if snap.IPsRecorded {
		data, err := json.Marshal(snap.ResolvedIPs)
		if err != nil {
			return row, fmt.Errorf("%w: resolved ips: %v", sharedErrors.ErrSerializationFailed, err)
		}
		row.resolvedIPs = sql.NullString{String: string(data), Valid: true}
	}
	if snap.ErrorCode != "" {
		row.errorCode = sql.NullString{String: snap.ErrorCode, Valid: true}
		row.errorMessage = sql.NullString{String: snap.ErrorMessage, Valid: true}
	}
	if len(snap.Summary) > 0 {
		row.summary = sql.NullString{String: string(snap.Summary), Valid: true}
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(sc rowScanner) (*job.Job, error) {
	var r jobRow
	if err := sc.Scan(&r.id, &r.targetID, &r.scanType, &r.requestedBy, &r.status, &r.createdAt, &r.startedAt,
		&r.finishedAt, &r.resolvedIPs, &r.errorCode, &r.errorMessage, &r.summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan job: %v", sharedErrors.ErrRepositoryOperation, err)
	}

	snap := job.Snapshot{
		ID:           r.id,
		TargetID:     r.targetID,
		ScanType:     r.scanType,
		RequestedBy:  r.requestedBy,
		Status:       job.Status(r.status),
		ErrorCode:    r.errorCode.String,
		ErrorMessage: r.errorMessage.String,
	}
	var err error
	if snap.CreatedAt, err = parseTime(r.createdAt); err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	if snap.StartedAt, err = parseTime(r.startedAt); err != nil {
		return nil, fmt.Errorf("%w: started_at: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	if snap.FinishedAt, err = parseTime(r.finishedAt); err != nil {
		return nil, fmt.Errorf("%w: finished_at: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	if r.resolvedIPs.Valid {
		snap.IPsRecorded = true
		if err := json.Unmarshal([]byte(r.resolvedIPs.String), &snap.ResolvedIPs); err != nil {
			return nil, fmt.Errorf("%w: resolved_ips: %v", sharedErrors.ErrDeserializationFailed, err)
		}
	}
	if r.summary.Valid {
		snap.Summary = json.RawMessage(r.summary.String)
	}
	return job.Reconstruct(snap), nil
}
