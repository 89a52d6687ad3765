package interfaces

import (
	"context"

	"liveroom/pkg/types"
)

// UserDirectory resolves authenticated user IDs into full user descriptors.
// It is the boundary with the LMS's account records; the collaboration
// core itself never reads from it.
type UserDirectory interface {
	// GetUser returns ErrUserNotFound when the ID is unknown.
	GetUser(ctx context.Context, userID string) (*types.User, error)

	// UpsertUser inserts or replaces a user descriptor.
	UpsertUser(ctx context.Context, user *types.User) error

	// DeleteUser is idempotent.
	DeleteUser(ctx context.Context, userID string) error

	HealthCheck(ctx context.Context) error

	Close() error
}
