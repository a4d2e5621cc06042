package pool

import (
	"context"
	"errors"
	"io"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

// ErrKilled is the result of an in-process worker that was killed.
var ErrKilled = errors.New("worker killed")

// RunFunc runs a worker until in is exhausted.
type RunFunc func(ctx context.Context, id int, in io.Reader, out io.Writer) error

// InProcessLauncher runs each worker on its own goroutine, connected by pipes.
// Workers share the process, so engines must not rely on process-global state.
type InProcessLauncher struct {
	Run RunFunc
}

func (l *InProcessLauncher) Launch(ctx context.Context, id int) (Conn, error) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	wctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	c := &inProcessConn{
		enc:    protocol.NewEncoder(inW),
		dec:    protocol.NewDecoder(outR),
		inR:    inR,
		outR:   outR,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		c.err = l.Run(wctx, id, inR, outW)
		if errors.Is(context.Cause(wctx), ErrKilled) {
			c.err = ErrKilled
		}
		_ = outW.Close()
		_ = inR.Close()
	}()
	return c, nil
}

type inProcessConn struct {
	enc    *protocol.Encoder
	dec    *protocol.Decoder
	inR    *io.PipeReader
	outR   *io.PipeReader
	cancel context.CancelCauseFunc
	done   chan struct{}
	err    error
}

func (c *inProcessConn) Send(m protocol.Message) error    { return c.enc.Encode(m) }
func (c *inProcessConn) Recv() (protocol.Message, error) { return c.dec.Decode() }
func (c *inProcessConn) CloseSend() error                { return c.enc.Close() }
func (c *inProcessConn) Pid() int                        { return 0 }

func (c *inProcessConn) Wait() error {
	<-c.done
	return c.err
}

func (c *inProcessConn) Kill() error {
	c.cancel(ErrKilled)
	_ = c.inR.CloseWithError(io.ErrClosedPipe)
	_ = c.outR.CloseWithError(io.ErrClosedPipe)
	return nil
}
