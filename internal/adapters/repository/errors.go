package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrEventNotFound      = errors.New("event not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrConflict signals a lost conditional write: either the row already
	// holds a pass or the sampled award code left the pool. It is a
	// recoverable signal, not a failure to surface.
	ErrConflict = errors.New("conditional write conflict")
)
