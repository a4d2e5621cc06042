package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

// WorkerIDEnv is set in the environment of every worker process.
const WorkerIDEnv = "OP_SPECRUNNER_WORKER_ID"

// ProcessLauncher runs each worker as a child process speaking the protocol on
// stdin and stdout. Stderr is passed through for worker logs.
type ProcessLauncher struct {
	// Path of the executable; defaults to the running binary.
	Path string
	// Args returns the arguments for worker id.
	Args   func(id int) []string
	Env    []string
	Stderr io.Writer
	Log    log.Logger
}

func (l *ProcessLauncher) Launch(ctx context.Context, id int) (Conn, error) {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate worker executable: %w", err)
		}
		path = exe
	}
	var args []string
	if l.Args != nil {
		args = l.Args(id)
	}

	// the coordinator owns the worker's lifetime, so the command is not bound to ctx
	cmd := exec.Command(path, args...)
	env := l.Env
	if env == nil {
		env = os.Environ()
	}
	env = append(env[:len(env):len(env)], WorkerIDEnv+"="+strconv.Itoa(id))
	cmd.Env = telemetry.InstrumentEnvironment(ctx, env)
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}
	if l.Log != nil {
		l.Log.Debug("Started worker process", "worker_id", id, "pid", cmd.Process.Pid, "path", path)
	}
	return &processConn{
		cmd:   cmd,
		stdin: stdin,
		enc:   protocol.NewEncoder(stdin),
		dec:   protocol.NewDecoder(stdout),
	}, nil
}

type processConn struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *protocol.Encoder
	dec   *protocol.Decoder

	waitOnce sync.Once
	waitErr  error
}

func (c *processConn) Send(m protocol.Message) error    { return c.enc.Encode(m) }
func (c *processConn) Recv() (protocol.Message, error) { return c.dec.Decode() }
func (c *processConn) CloseSend() error                { return c.enc.Close() }
func (c *processConn) Pid() int                        { return c.cmd.Process.Pid }

func (c *processConn) Wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
	})
	return c.waitErr
}

func (c *processConn) Kill() error {
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
