// Package worker runs spec files on behalf of the coordinator. A worker boots one
// test engine and then runs the files it is sent, one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-specrunner/discovery"
	"github.com/ethereum-optimism/infra/op-specrunner/engine"
	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

type state int

const (
	stateUninitialized state = iota
	stateConfiguring
	stateReady
	stateExecuting
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateConfiguring:
		return "configuring"
	case stateReady:
		return "ready"
	case stateExecuting:
		return "executing"
	case stateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrProtocol marks messages that are not valid in the worker's current state.
var ErrProtocol = errors.New("protocol error")

// OpenEngineFunc opens the engine named by the configuration.
type OpenEngineFunc func(name, path string, logger log.Logger) (engine.Engine, error)

type Worker struct {
	id  int
	log log.Logger
	in  *protocol.Decoder
	out *sender

	openEngine OpenEngineFunc
	env        engine.Env
	capture    *doneCapture
	state      state
	fatal      error
}

// New creates a worker reading commands from in and writing messages to out.
func New(id int, in io.Reader, out io.Writer, logger log.Logger) *Worker {
	logger = logger.New("worker_id", id)
	return &Worker{
		id:         id,
		log:        logger,
		in:         protocol.NewDecoder(in),
		out:        newSender(out, logger),
		openEngine: engine.Open,
		capture:    &doneCapture{},
	}
}

// WithEngineOpener replaces how the engine is opened.
func (w *Worker) WithEngineOpener(open OpenEngineFunc) *Worker {
	w.openEngine = open
	return w
}

// Run processes commands until the coordinator closes the channel. It returns the
// first fatal error reported to the coordinator, if any.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if err := w.out.close(); err != nil {
			w.log.Debug("Failed to close output", "err", err)
		}
	}()
	for {
		m, err := w.in.Decode()
		if errors.Is(err, io.EOF) {
			w.log.Debug("Coordinator disconnected")
			return w.fatal
		}
		if err != nil {
			w.reportFatal(fmt.Errorf("%w: %w", ErrProtocol, err))
			return w.fatal
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		w.handle(ctx, m)
	}
}

func (w *Worker) handle(ctx context.Context, m protocol.Message) {
	if w.state == stateFailed {
		w.log.Warn("Ignoring message after fatal error", "type", m.Type)
		return
	}
	switch m.Type {
	case protocol.KindConfigure:
		if w.state != stateUninitialized {
			w.reportFatal(fmt.Errorf("%w: configure received while %s", ErrProtocol, w.state))
			return
		}
		if err := w.configure(ctx, *m.Configuration); err != nil {
			w.reportFatal(err)
			return
		}
		w.state = stateReady
		w.out.send(protocol.Booted())
	case protocol.KindRunSpecFile:
		if w.state != stateReady {
			w.reportFatal(fmt.Errorf("%w: runSpecFile received while %s", ErrProtocol, w.state))
			return
		}
		w.state = stateExecuting
		if err := w.runSpecFile(ctx, m.FilePath); err != nil {
			w.reportFatal(err)
			return
		}
		w.state = stateReady
	default:
		w.reportFatal(fmt.Errorf("%w: unexpected %s message", ErrProtocol, m.Type))
	}
}

func (w *Worker) configure(ctx context.Context, cfg protocol.Configuration) (err error) {
	w.state = stateConfiguring
	defer recoverPanic("configure", &err)

	eng, err := w.openEngine(cfg.Engine, cfg.EnginePath, w.log)
	if err != nil {
		return fmt.Errorf("failed to load engine: %w", err)
	}
	if err := eng.Boot(ctx); err != nil {
		return fmt.Errorf("failed to boot engine: %w", err)
	}
	env := eng.Env()
	if env == nil {
		return errors.New("engine has no environment after boot")
	}
	env.AddReporter(&forwardingReporter{w: w})
	env.AddReporter(w.capture)

	if err := env.Configure(engine.Options{
		SpecDir: cfg.SpecDir,
		Env:     cfg.Env,
		Filter:  cfg.Filter,
		Loader:  cfg.Loader,
	}); err != nil {
		return fmt.Errorf("failed to configure engine: %w", err)
	}

	for _, req := range cfg.Requires {
		if err := env.LoadRequire(ctx, req); err != nil {
			return err
		}
	}
	helpers, err := discovery.HelperFiles(cfg.SpecDir, cfg.Helpers)
	if err != nil {
		return err
	}
	for _, helper := range helpers {
		if err := env.LoadHelper(ctx, helper); err != nil {
			return wrapLoadError(helper, err)
		}
	}

	w.env = env
	w.log.Info("Worker booted", "requires", len(cfg.Requires), "helpers", len(helpers))
	return nil
}

func (w *Worker) runSpecFile(ctx context.Context, path string) (err error) {
	defer recoverPanic(path, &err)

	if err := w.env.Reset(); err != nil {
		return fmt.Errorf("failed to reset engine: %w", err)
	}
	w.capture.take()

	if err := w.env.LoadSpecFile(ctx, path); err != nil {
		return wrapLoadError(path, err)
	}
	w.log.Debug("Running spec file", "file", path)
	if err := w.env.Execute(ctx); err != nil {
		return fmt.Errorf("failed to execute %s: %w", path, err)
	}
	done := w.capture.take()
	if done == nil {
		return fmt.Errorf("engine finished %s without reporting a result", path)
	}
	w.out.send(protocol.SpecFileDone(done))
	return nil
}

// reportFatal hands err to the coordinator, which logs it for the run.
func (w *Worker) reportFatal(err error) {
	w.log.Debug("Reporting fatal error", "err", err)
	w.state = stateFailed
	if w.fatal == nil {
		w.fatal = err
	}
	w.out.send(protocol.FatalError(err))
}

// panicError carries the stack of a recovered panic.
type panicError struct {
	where string
	value any
	stack string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.where, e.value)
}

func (e *panicError) Stack() string {
	return e.stack
}

func recoverPanic(where string, err *error) {
	if r := recover(); r != nil {
		*err = &panicError{where: where, value: r, stack: string(debug.Stack())}
	}
}
