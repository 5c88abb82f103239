package enrollment

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no caller identity is available
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAlreadyEnrolled is returned when the user already has an ACTIVE
	// enrollment in the course
	ErrAlreadyEnrolled = errors.New("already enrolled in course")

	// ErrNotEnrolled is returned when no matching enrollment exists
	ErrNotEnrolled = errors.New("not enrolled in course")

	// ErrTransactionConflict is returned when optimistic conflicts exhaust
	// the retry budget. The whole operation may be retried.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrStoreUnavailable wraps store I/O failures
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidArgument is returned for malformed input
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotCompleted is returned when issuing a certificate for an
	// enrollment that is not COMPLETED
	ErrNotCompleted = errors.New("enrollment not completed")
)

var taxonomy = []error{
	ErrNotAuthenticated,
	ErrAlreadyEnrolled,
	ErrNotEnrolled,
	ErrTransactionConflict,
	ErrStoreUnavailable,
	ErrInvalidArgument,
	ErrNotCompleted,
}

// translate maps a failure into the service taxonomy. Context errors pass
// through so callers can tell cancellation from failure.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Code returns a stable snake_case class for an error, used as a metric
// label and as the HTTP error code
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrTransactionConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotCompleted):
		return "not_completed"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// Retryable reports whether re-issuing the whole operation may succeed
func Retryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict) || errors.Is(err, ErrStoreUnavailable)
}
