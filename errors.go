package specrunner

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-specrunner/exitcodes"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// RuntimeError represents an operational error that should lead to exit code 1
// Examples include configuration errors, fatal worker errors, etc.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func (e *RuntimeError) ExitCode() int {
	return exitcodes.RuntimeErr
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// RunStatusError reports a run that finished without passing.
type RunStatusError struct {
	Status types.Status
	Reason string
}

func (e *RunStatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("run %s: %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("run %s", e.Status)
}

// ExitCode implements cli.ExitCoder.
func (e *RunStatusError) ExitCode() int {
	return exitcodes.ForStatus(e.Status)
}

// IsRunStatusError checks if the error is or wraps a RunStatusError
func IsRunStatusError(err error) bool {
	var statusErr *RunStatusError
	return err != nil && errors.As(err, &statusErr)
}
