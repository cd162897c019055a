package token

import "errors"

// Sentinel errors for token store operations.
var (
	// ErrNotFound indicates that no record matches the lookup.
	ErrNotFound = errors.New("token not found")

	// ErrDuplicateSecret indicates a secret collision on create or
	// regenerate. Secrets are globally unique and never reused.
	ErrDuplicateSecret = errors.New("token secret already in use")

	// ErrDuplicateID indicates an ID collision on create.
	ErrDuplicateID = errors.New("token id already in use")
)
