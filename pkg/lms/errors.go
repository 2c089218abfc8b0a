package lms

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("lms: resource not found")
	ErrConflict     = errors.New("lms: conflict")
	ErrUnauthorized = errors.New("lms: unauthorized")
	ErrInvalid      = errors.New("lms: invalid request")
)

// StatusError is returned when the backend answered with a non-success status.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lms %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("lms %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// Is maps HTTP statuses onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrInvalid:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	default:
		return false
	}
}

// TransportError is returned when no usable response arrived.
// Delivered is true once the request headers were written to the connection.
type TransportError struct {
	Op        string
	Delivered bool
	Err       error
}

func (e *TransportError) Error() string {
	state := "not delivered"
	if e.Delivered {
		state = "response lost"
	}
	return fmt.Sprintf("lms %s: %s: %v", e.Op, state, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsAmbiguous reports whether the backend may have applied the request even though the call failed.
func IsAmbiguous(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Delivered
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// NeverDelivered reports whether the request provably did not reach the backend.
func NeverDelivered(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) && !transportErr.Delivered
}
