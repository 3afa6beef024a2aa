package target

import "context"

// Repository defines the interface for target persistence
type Repository interface {
	// Upsert stores t unless a target with the same base URL exists, in which
	// case the existing target is returned unchanged.
	Upsert(ctx context.Context, t *Target) (*Target, error)

	// FindByID returns ErrTargetNotFound when no target has the id.
	FindByID(ctx context.Context, id string) (*Target, error)

	// List returns all targets, oldest first.
	List(ctx context.Context) ([]*Target, error)
}
