package engine

import (
	"errors"
	"fmt"
)

var (
	ErrStopped   = errors.New("engine stopped")
	ErrQueueFull = errors.New("engine queue full")
)

// NoRetry marks an error as permanent so the retrier stops immediately.
//
//	return engine.NoRetry(fmt.Errorf("bad rule: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }

// StepError reports a step that failed after its retry budget.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
