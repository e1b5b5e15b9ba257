package attendance

import "errors"

var (
	// ErrNotFound is returned for unknown session ids or class codes.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps any failure to read or write a durable store.
	ErrPersistence = errors.New("persistence failure")
	// ErrValidation is returned when required input is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrSessionExpired is advisory: the session exists but no longer
	// accepts submissions.
	ErrSessionExpired = errors.New("session expired")
	// ErrIDExhausted is returned when no unused session id could be drawn.
	ErrIDExhausted = errors.New("session id space exhausted")
)
