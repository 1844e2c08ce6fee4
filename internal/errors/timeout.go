package errors

import (
	"context"
	"errors"
	"fmt"
)

// TimeoutError reports that Operation hit its deadline.
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, ErrTimeout)
}

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// FromContext converts a context failure into a domain error: a deadline becomes
// a TimeoutError for operation, a cancellation is returned as is. Other errors
// pass through unchanged.
func FromContext(err error, operation string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Operation: operation}
	}
	return err
}

// CheckContext returns FromContext(ctx.Err(), operation) or nil while ctx is live.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return FromContext(err, operation)
	}
	return nil
}
