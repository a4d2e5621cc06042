package runner

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

type stackErr struct{}

func (stackErr) Error() string { return "boom" }
func (stackErr) Stack() string { return "local stack" }

func TestFatalError(t *testing.T) {
	remote := &protocol.Error{Message: "engine blew up", Stack: "remote stack"}

	fe := &FatalError{Worker: 3, Err: remote}
	require.Equal(t, "worker 3: engine blew up", fe.Error())
	require.Equal(t, "remote stack", fe.Stack())
	require.True(t, IsFatal(fmt.Errorf("run: %w", fe)))

	fe = &FatalError{Err: fmt.Errorf("wrapped: %w", stackErr{})}
	require.Equal(t, "wrapped: boom", fe.Error())
	require.Equal(t, "local stack", fe.Stack())

	fe = &FatalError{Err: errors.New("plain")}
	require.Empty(t, fe.Stack())
	require.False(t, IsFatal(errors.New("plain")))
}

func TestUsageError(t *testing.T) {
	err := usageErrorf("bad %s", "input")
	require.ErrorIs(t, err, ErrUsage)
	require.EqualError(t, err, "bad input")

	cause := errors.New("cause")
	err = &UsageError{Msg: "wrapped", Err: cause}
	require.ErrorIs(t, err, ErrUsage)
	require.ErrorIs(t, err, cause)
}

func TestExecutionStateOverallStatus(t *testing.T) {
	s := newExecutionState()
	status, code, reason := s.overallStatus()
	require.Equal(t, "incomplete", string(status))
	require.Equal(t, "noSpecsFound", code)
	require.Equal(t, "No specs found", reason)

	s.mergeSpecFileDone(protocol.Message{OverallStatus: "passed"})
	status, code, _ = s.overallStatus()
	require.Equal(t, "passed", string(status))
	require.Empty(t, code)

	s.mergeSpecFileDone(protocol.Message{OverallStatus: "failed"})
	status, _, _ = s.overallStatus()
	require.Equal(t, "failed", string(status))
}

func TestFileQueue(t *testing.T) {
	q := newFileQueue([]string{"a", "b"})
	require.Equal(t, 2, q.remaining())
	f, ok := q.next()
	require.True(t, ok)
	require.Equal(t, "a", f)
	f, _ = q.next()
	require.Equal(t, "b", f)
	require.True(t, q.empty())
	_, ok = q.next()
	require.False(t, ok)
}
