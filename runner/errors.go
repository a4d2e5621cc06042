package runner

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

var (
	// ErrUsage is wrapped by every UsageError.
	ErrUsage = errors.New("usage error")

	ErrAlreadyExecuted = &UsageError{Msg: "parallel runner instance can only be executed once"}
	ErrWorkerExited    = errors.New("worker process unexpectedly exited")
	ErrProtocol        = errors.New("protocol error")
)

// UsageError reports a misuse of the coordinator. It is never retried.
type UsageError struct {
	Msg string
	Err error
}

func (e *UsageError) Error() string {
	return e.Msg
}

func (e *UsageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUsage}
	}
	return []error{ErrUsage, e.Err}
}

func usageErrorf(format string, args ...any) error {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// FatalError invalidates a whole run. Worker is 0 when the error did not come
// from a worker.
type FatalError struct {
	Worker int
	Err    error
}

func (e *FatalError) Error() string {
	if e.Worker == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("worker %d: %v", e.Worker, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Stack returns the stack reported with the error, if any.
func (e *FatalError) Stack() string {
	var remote *protocol.Error
	if errors.As(e.Err, &remote) {
		return remote.Stack
	}
	var st interface{ Stack() string }
	if errors.As(e.Err, &st) {
		return st.Stack()
	}
	return ""
}

// IsFatal reports whether err aborted a run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
