// Package store defines the persistence contracts used by the auth flow and
// the job runner. Implementations live in the memory and postgres subpackages.
package store

import "errors"

// Sentinel errors for common error conditions
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrSessionNotFound   = errors.New("session not found")
	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrResultNotFound    = errors.New("result not found")
	ErrResultExists      = errors.New("result already exists")
)
