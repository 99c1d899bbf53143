package entity

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("deployment lock held")
	ErrInvalid  = errors.New("invalid argument")
	ErrInternal = errors.New("internal error")
)

// NotFoundError reports an operation against a deploymentID or stage that
// was never started or was already cleared. Callers should treat it as a
// sequencing bug, not retry it.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// LockHeldError is returned when an active (non-expired) deployment lock
// already exists for a stage. Remaining is the time until the lock expires.
type LockHeldError struct {
	Stage     string
	Remaining time.Duration
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("deployment lock held for stage %q: expires in %d minute(s)", e.Stage, e.RemainingMinutes())
}

func (e *LockHeldError) Unwrap() error { return ErrLockHeld }

// RemainingMinutes rounds the remaining TTL up so a lock about to expire
// still reports at least one minute.
func (e *LockHeldError) RemainingMinutes() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(e.Remaining.Minutes()))
}

// ValidationError reports a caller-supplied value outside its legal range.
// No state is mutated when one is returned.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }
