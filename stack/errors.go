package stack

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Stack. Compare with errors.Is: the returned
// errors carry extra context.
var (
	// ErrInvalidArgument reports a capacity below 1 or a nil element.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCapacityExceeded is returned by Push when the stack is full.
	ErrCapacityExceeded = errors.New("stack capacity exceeded")

	// ErrCancelled is returned when a blocking call is abandoned because its
	// context is done. The error also wraps ctx.Err().
	ErrCancelled = errors.New("stack operation cancelled")
)

func cancelled(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCancelled, cause)
}
