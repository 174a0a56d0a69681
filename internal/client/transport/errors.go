package transport

import "errors"

// ErrSessionNotFound reports a session id the backend no longer knows.
var ErrSessionNotFound = errors.New("chat session not found")

// TransportError is a network or server-side failure. These are potentially
// retryable; retry policy belongs to the caller, never to the client itself.
type TransportError struct {
	Op     string // user-facing fallback, e.g. "Failed to send message"
	Status int    // HTTP status, 0 for network failures
	Detail string // backend-provided detail, if any
	Err    error
}

func (e *TransportError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Op
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is a rejected input. Retrying the same request cannot
// succeed.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string { return e.Detail }
