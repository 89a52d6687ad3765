package types

import "github.com/cockroachdb/errors"

var (
	ErrInvalidUserID        = errors.New("user ID must be 1-64 characters: letters, digits, '_', '-', '.', '@'")
	ErrInvalidUserName      = errors.New("user name must be 1-200 characters")
	ErrInvalidRole          = errors.New("user role is required")
	ErrInvalidEstablishment = errors.New("establishment ID is required")
)
