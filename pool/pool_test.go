package pool

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// echoWorker boots on configure and passes every spec file it is sent.
func echoWorker(ctx context.Context, id int, in io.Reader, out io.Writer) error {
	dec := protocol.NewDecoder(in)
	enc := protocol.NewEncoder(out)
	for {
		m, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch m.Type {
		case protocol.KindConfigure:
			if err := enc.Encode(protocol.Booted()); err != nil {
				return err
			}
		case protocol.KindRunSpecFile:
			if m.FilePath == "crash" {
				return errors.New("crashed")
			}
			if err := enc.Encode(protocol.SpecFileDone(&types.RunDoneEvent{OverallStatus: types.StatusPassed})); err != nil {
				return err
			}
		}
	}
}

func testLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func nextEvent(t *testing.T, p *Pool) Event {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for pool event")
		return Event{}
	}
}

func TestPoolBootAndDisconnect(t *testing.T) {
	p := New(&InProcessLauncher{Run: echoWorker}, testLogger())
	ids, err := p.Spawn(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)

	for _, id := range ids {
		require.NoError(t, p.Send(id, protocol.Configure(protocol.Configuration{SpecDir: "."})))
	}
	booted := map[int]bool{}
	for range ids {
		ev := nextEvent(t, p)
		require.Equal(t, EventMessage, ev.Kind)
		require.Equal(t, protocol.KindBooted, ev.Message.Type)
		booted[ev.Worker] = true
	}
	assert.Len(t, booted, 3)

	require.NoError(t, p.Send(2, protocol.RunSpecFile("a")))
	ev := nextEvent(t, p)
	assert.Equal(t, 2, ev.Worker)
	assert.Equal(t, protocol.KindSpecFileDone, ev.Message.Type)

	require.NoError(t, p.Disconnect(context.Background()))
	require.Error(t, p.Send(9, protocol.Booted()))
}

func TestPoolReportsExit(t *testing.T) {
	p := New(&InProcessLauncher{Run: echoWorker}, testLogger())
	_, err := p.Spawn(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, p.Send(1, protocol.RunSpecFile("crash")))
	ev := nextEvent(t, p)
	assert.Equal(t, EventExit, ev.Kind)
	assert.EqualError(t, ev.Err, "crashed")

	require.NoError(t, p.Disconnect(context.Background()))
}

func TestPoolReportsProtocolError(t *testing.T) {
	garbage := func(ctx context.Context, id int, in io.Reader, out io.Writer) error {
		_, err := out.Write([]byte("this is not a message\n"))
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, in)
		return nil
	}
	p := New(&InProcessLauncher{Run: garbage}, testLogger())
	_, err := p.Spawn(context.Background(), 1)
	require.NoError(t, err)

	ev := nextEvent(t, p)
	require.Equal(t, EventError, ev.Kind)
	assert.Contains(t, ev.Err.Error(), "malformed message")
	ev = nextEvent(t, p)
	assert.Equal(t, EventExit, ev.Kind)

	require.NoError(t, p.Disconnect(context.Background()))
}

func TestPoolKillsHungWorkers(t *testing.T) {
	hung := func(ctx context.Context, id int, in io.Reader, out io.Writer) error {
		<-ctx.Done()
		return ctx.Err()
	}
	p := New(&InProcessLauncher{Run: hung}, testLogger())
	p.DisconnectTimeout = 10 * time.Millisecond
	_, err := p.Spawn(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, p.Disconnect(context.Background()))
}

type failingLauncher struct {
	inner  Launcher
	failAt int
}

func (l *failingLauncher) Launch(ctx context.Context, id int) (Conn, error) {
	if id == l.failAt {
		return nil, errors.New("no more processes")
	}
	return l.inner.Launch(ctx, id)
}

func TestSpawnFailureKillsStartedWorkers(t *testing.T) {
	hung := func(ctx context.Context, id int, in io.Reader, out io.Writer) error {
		<-ctx.Done()
		return ctx.Err()
	}
	p := New(&failingLauncher{inner: &InProcessLauncher{Run: hung}, failAt: 3}, testLogger())
	_, err := p.Spawn(context.Background(), 4)
	require.ErrorContains(t, err, "failed to launch worker 3: no more processes")
}

const helperEnv = "OP_SPECRUNNER_POOL_HELPER"

// TestHelperWorkerProcess is not a real test; it is the worker process started by
// TestProcessLauncher.
func TestHelperWorkerProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	if err := echoWorker(context.Background(), 0, os.Stdin, os.Stdout); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestProcessLauncher(t *testing.T) {
	launcher := &ProcessLauncher{
		Path: os.Args[0],
		Args: func(id int) []string { return []string{"-test.run=^TestHelperWorkerProcess$"} },
		Env:  append(os.Environ(), helperEnv+"=1"),
		Log:  testLogger(),
	}
	p := New(launcher, testLogger())
	_, err := p.Spawn(context.Background(), 2)
	require.NoError(t, err)

	require.NoError(t, p.Send(1, protocol.Configure(protocol.Configuration{})))
	ev := nextEvent(t, p)
	assert.Equal(t, 1, ev.Worker)
	assert.Equal(t, protocol.KindBooted, ev.Message.Type)

	require.NoError(t, p.Send(2, protocol.RunSpecFile("crash")))
	ev = nextEvent(t, p)
	assert.Equal(t, 2, ev.Worker)
	assert.Equal(t, EventExit, ev.Kind)
	assert.Error(t, ev.Err)

	require.NoError(t, p.Disconnect(context.Background()))
}
