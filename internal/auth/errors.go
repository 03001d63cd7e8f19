package auth

import "errors"

var (
	// Credential and validation outcomes. These are expected results, not faults.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingFields      = errors.New("missing required fields")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrInvalidRole        = errors.New("invalid role")
	ErrEmptyPassword      = errors.New("empty password")
	ErrPasswordTooLong    = errors.New("password longer than 72 bytes")

	// Token and access outcomes.
	ErrNoToken          = errors.New("no token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrPermissionDenied = errors.New("permission denied")

	// Store lookups.
	ErrUserNotFound = errors.New("user not found")
	ErrRoleNotFound = errors.New("role not found")
)
