// Package apperr holds the sentinel errors shared across packages. Callers
// wrap them with fmt.Errorf("...: %w", err) and match with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnknownAction   = errors.New("unknown action")
	ErrNoDatabaseBlock = errors.New("no database block")
)
