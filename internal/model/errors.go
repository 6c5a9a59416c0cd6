package model

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientNetwork marks a rejected or timed-out fetch. Retried only
	// on explicit user action.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrMalformedResponse marks a response missing its products field.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrCacheCorruption marks a stored cache entry that failed to decode.
	ErrCacheCorruption = errors.New("cache entry corrupted")

	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError is surfaced synchronously before any network attempt.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
