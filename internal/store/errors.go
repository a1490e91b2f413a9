package store

import "errors"

var (
	// ErrStorage wraps every database-level failure. A failed batch
	// applies none of its records and must not advance any cursor.
	ErrStorage = errors.New("storage failure")

	// ErrRunNotFound is returned when finishing a run whose identifier
	// is unknown.
	ErrRunNotFound = errors.New("collection run not found")
)
