// Package hooks runs the global setup and teardown hooks of a run.
package hooks

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// DefaultTimeout applies when a hook is run without an explicit timeout.
const DefaultTimeout = 5000 * time.Millisecond

const (
	GlobalSetup    = "globalSetup"
	GlobalTeardown = "globalTeardown"
)

// Hook is a user supplied function run once per run.
type Hook func(ctx context.Context) error

// TimeoutError is returned when a hook did not finish within its timeout.
type TimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %d milliseconds", e.Name, e.Timeout.Milliseconds())
}

// PanicError is returned when a hook panicked.
type PanicError struct {
	Name  string
	Value any
	stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Name, e.Value)
}

func (e *PanicError) Stack() string {
	return e.stack
}

// Run runs fn and waits at most timeout for it to finish. A zero timeout means
// DefaultTimeout. When the timer wins, fn keeps running in the background and its
// result is discarded. Anything fn touches after that point is on its own.
func Run(ctx context.Context, name string, fn Hook, timeout time.Duration) error {
	if fn == nil {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Name: name, Value: r, stack: string(debug.Stack())}
			}
		}()
		done <- fn(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return &TimeoutError{Name: name, Timeout: timeout}
	case <-ctx.Done():
		return fmt.Errorf("%s interrupted: %w", name, context.Cause(ctx))
	}
}
