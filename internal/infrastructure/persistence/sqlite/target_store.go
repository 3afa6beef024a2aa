package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/khanhnv2901/seca-scanner/internal/domain/target"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// TargetStore implements target.Repository.
type TargetStore struct {
	db *sql.DB
}

// NewTargetStore returns a store backed by d.
func NewTargetStore(d *DB) *TargetStore {
	return &TargetStore{db: d.db}
}

var _ target.Repository = (*TargetStore)(nil)

// Upsert inserts t unless its base URL is already known.
func (s *TargetStore) Upsert(ctx context.Context, t *target.Target) (*target.Target, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (id, base_url, description, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(base_url) DO NOTHING`,
		t.ID(), t.BaseURL(), t.Description(), formatTime(t.CreatedAt()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert target: %v", sharedErrors.ErrRepositoryOperation, err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT id, base_url, description, created_at FROM targets WHERE base_url = ?`, t.BaseURL())
	return scanTarget(row)
}

// FindByID returns ErrTargetNotFound for unknown ids.
func (s *TargetStore) FindByID(ctx context.Context, id string) (*target.Target, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, base_url, description, created_at FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sharedErrors.ErrTargetNotFound
	}
	return t, err
}

// List returns targets oldest first.
func (s *TargetStore) List(ctx context.Context) ([]*target.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, base_url, description, created_at FROM targets ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: list targets: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	defer rows.Close()

	targets := make([]*target.Target, 0)
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	return targets, nil
}

func scanTarget(sc rowScanner) (*target.Target, error) {
	var (
		id, baseURL, description string
		createdAt                sql.NullString
	)
	if err := sc.Scan(&id, &baseURL, &description, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan target: %v", sharedErrors.ErrRepositoryOperation, err)
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	return target.Reconstruct(id, baseURL, description, created), nil
}
