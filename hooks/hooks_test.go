package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSucceeds(t *testing.T) {
	called := false
	err := Run(context.Background(), GlobalSetup, func(ctx context.Context) error {
		called = true
		return nil
	}, 0)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestRunNilHook(t *testing.T) {
	require.NoError(t, Run(context.Background(), GlobalSetup, nil, time.Millisecond))
}

func TestRunPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), GlobalTeardown, func(ctx context.Context) error {
		return boom
	}, time.Second)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "boom", err.Error())
}

func TestRunTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	err := Run(context.Background(), GlobalSetup, func(ctx context.Context) error {
		<-release
		return nil
	}, 10*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, "globalSetup timed out after 10 milliseconds", err.Error())
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, GlobalSetup, timeout.Name)
}

func TestRunDoesNotCancelAbandonedHook(t *testing.T) {
	finished := make(chan error, 1)
	err := Run(context.Background(), GlobalTeardown, func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		finished <- ctx.Err()
		return nil
	}, 5*time.Millisecond)
	require.Error(t, err)

	select {
	case ctxErr := <-finished:
		assert.NoError(t, ctxErr, "hook context must not be cancelled on timeout")
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned hook never finished")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	err := Run(context.Background(), GlobalSetup, func(ctx context.Context) error {
		panic("oops")
	}, time.Second)
	var p *PanicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "globalSetup panicked: oops", err.Error())
	assert.NotEmpty(t, p.Stack())
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	release := make(chan struct{})
	defer close(release)

	err := Run(ctx, GlobalSetup, func(ctx context.Context) error {
		<-release
		return nil
	}, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDefaultTimeout(t *testing.T) {
	assert.Equal(t, 5000*time.Millisecond, DefaultTimeout)
}

func TestCommand(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	assert.Nil(t, Command(GlobalSetup, "  ", logger))

	ok := Command(GlobalSetup, "echo hello && echo world >&2", logger)
	require.NoError(t, Run(context.Background(), GlobalSetup, ok, 10*time.Second))

	fail := Command(GlobalTeardown, "exit 3", logger)
	err := Run(context.Background(), GlobalTeardown, fail, 10*time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `globalTeardown command "exit 3" failed`)
}
