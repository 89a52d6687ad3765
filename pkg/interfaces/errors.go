package interfaces

import "github.com/cockroachdb/errors"

// Common interface errors used across components
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
