package runner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-specrunner/exitcodes"
	"github.com/ethereum-optimism/infra/op-specrunner/hooks"
	"github.com/ethereum-optimism/infra/op-specrunner/metrics"
	"github.com/ethereum-optimism/infra/op-specrunner/pool"
	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/randomizer"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// Config is everything the coordinator needs for one run.
type Config struct {
	Launcher   pool.Launcher
	NumWorkers int

	// Sent to every worker
	SpecDir    string
	Helpers    []string
	Requires   []string
	Engine     string
	EnginePath string
	Loader     string
	Env        types.EnvConfig

	// SpecFiles and Filter are used when Execute is called without them.
	SpecFiles []string
	Filter    string

	// StopOnSpecFailure stops handing out files after the first failure. Files
	// already running finish.
	StopOnSpecFailure bool

	GlobalSetup           hooks.Hook
	GlobalSetupTimeout    time.Duration
	GlobalTeardown        hooks.Hook
	GlobalTeardownTimeout time.Duration

	Reporters []types.Reporter

	DisconnectTimeout time.Duration
	// Terminate ends the process when exit on completion is enabled. Defaults to os.Exit.
	Terminate func(code int)
	// NewSeed generates the seed that orders spec files. Defaults to randomizer.NewSeed.
	NewSeed func() string
}

// Coordinator runs spec files on a pool of workers and combines their results
// into one run. A Coordinator runs at most once.
type Coordinator struct {
	cfg    Config
	log    log.Logger
	tracer trace.Tracer

	mu               sync.Mutex
	started          bool
	env              types.EnvConfig
	reporters        dispatcher
	exitOnCompletion bool
}

// New validates cfg and returns a coordinator that has not started any workers.
func New(cfg Config, logger log.Logger) (*Coordinator, error) {
	if cfg.Launcher == nil {
		return nil, usageErrorf("a worker launcher is required")
	}
	if cfg.NumWorkers < 1 {
		return nil, usageErrorf("number of workers must be at least 1, got %d", cfg.NumWorkers)
	}
	if cfg.Terminate == nil {
		cfg.Terminate = os.Exit
	}
	if cfg.NewSeed == nil {
		cfg.NewSeed = randomizer.NewSeed
	}
	c := &Coordinator{
		cfg:              cfg,
		log:              logger.New("component", "coordinator"),
		tracer:           otel.Tracer("spec coordinator"),
		exitOnCompletion: true,
	}
	if err := c.ConfigureEnv(cfg.Env); err != nil {
		return nil, err
	}
	if err := c.reporters.addAll(cfg.Reporters); err != nil {
		return nil, err
	}
	return c, nil
}

// SetExitOnCompletion controls whether Execute terminates the process when done.
func (c *Coordinator) SetExitOnCompletion(exit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exitOnCompletion = exit
}

// AddReporter attaches r. It fails when r does not support parallel runs.
func (c *Coordinator) AddReporter(r types.Reporter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reporters.add(r)
}

// AddReporters adds a configured list of reporters. Errors name the list index.
func (c *Coordinator) AddReporters(list []types.Reporter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reporters.addAll(list)
}

// ClearReporters removes every attached reporter.
func (c *Coordinator) ClearReporters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reporters.clear()
}

// ConfigureEnv replaces the engine configuration sent to workers.
func (c *Coordinator) ConfigureEnv(env types.EnvConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return usageErrorf("can't call ConfigureEnv after Execute")
	}
	if err := env.CheckParallel(); err != nil {
		return &UsageError{Msg: err.Error(), Err: err}
	}
	c.env = env
	return nil
}

// Execute runs files (the configured spec files when nil) and returns the combined
// result. Fatal errors abort the run and are returned as *FatalError. Unless exit
// on completion was disabled, Execute terminates the process before returning.
func (c *Coordinator) Execute(ctx context.Context, files []string, filter string) (*types.RunDoneEvent, error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil, ErrAlreadyExecuted
	}
	c.started = true
	env := c.env
	reporters := &dispatcher{reporters: append([]types.ParallelReporter(nil), c.reporters.reporters...)}
	exit := c.exitOnCompletion
	c.mu.Unlock()

	if files == nil {
		files = c.cfg.SpecFiles
	}
	if filter == "" {
		filter = c.cfg.Filter
	}

	runID := uuid.New().String()
	logger := c.log.New("run_id", runID)
	ctx, span := c.tracer.Start(ctx, "run")
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.workers", c.cfg.NumWorkers),
		attribute.Int("run.spec_files", len(files)),
	)

	x := &execution{
		c:         c,
		log:       logger,
		runID:     runID,
		reporters: reporters,
		files:     files,
		workers:   make(map[int]*workerHandle),
		state:     newExecutionState(),
		start:     time.Now(),
		config: protocol.Configuration{
			SpecDir:    c.cfg.SpecDir,
			Helpers:    c.cfg.Helpers,
			Requires:   c.cfg.Requires,
			Filter:     filter,
			Env:        env,
			Loader:     c.cfg.Loader,
			Engine:     c.cfg.Engine,
			EnginePath: c.cfg.EnginePath,
		},
	}
	done, err := c.run(ctx, x)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("run.status", string(done.OverallStatus)))
		metrics.RecordRun(runID, done.OverallStatus, done.TotalTime)
		logger.Info("Run finished", "status", done.OverallStatus, "duration", done.TotalTime,
			"failures", len(done.FailedExpectations), "incomplete", done.IncompleteReason)
	}
	span.End()

	if exit {
		c.cfg.Terminate(exitcodes.ForResult(done, err))
	}
	return done, err
}

// run wraps the execution in the global hooks. Teardown runs whenever setup succeeded.
func (c *Coordinator) run(ctx context.Context, x *execution) (*types.RunDoneEvent, error) {
	if err := hooks.Run(ctx, hooks.GlobalSetup, c.cfg.GlobalSetup, c.cfg.GlobalSetupTimeout); err != nil {
		fe := &FatalError{Err: err}
		x.logFatal(fe)
		return nil, fe
	}

	done, err := x.execute(ctx)

	tdErr := hooks.Run(context.WithoutCancel(ctx), hooks.GlobalTeardown, c.cfg.GlobalTeardown, c.cfg.GlobalTeardownTimeout)
	if tdErr != nil {
		x.log.Error("Global teardown failed", "err", tdErr)
		metrics.RecordErrorDetails("global_teardown", tdErr)
		if err == nil {
			return nil, &FatalError{Err: tdErr}
		}
	}
	return done, err
}

// execution is the state of one run. It is only touched by the goroutine running
// Execute, which handles worker events one at a time.
type execution struct {
	c         *Coordinator
	log       log.Logger
	runID     string
	reporters *dispatcher
	config    protocol.Configuration
	files     []string
	start     time.Time

	pool    *pool.Pool
	workers map[int]*workerHandle
	ids     []int
	booted  int
	queue   *fileQueue
	state   *executionState

	exiting  bool
	fatalErr *FatalError
}

func (x *execution) execute(ctx context.Context) (*types.RunDoneEvent, error) {
	n := x.c.cfg.NumWorkers
	x.pool = pool.New(x.c.cfg.Launcher, x.log)
	if x.c.cfg.DisconnectTimeout > 0 {
		x.pool.DisconnectTimeout = x.c.cfg.DisconnectTimeout
	}

	ids, err := x.pool.Spawn(ctx, n)
	if err != nil {
		return nil, x.fatal(ctx, 0, err)
	}
	x.ids = ids
	for _, id := range ids {
		x.workers[id] = &workerHandle{id: id}
		metrics.RecordWorkerStarted()
	}
	for _, id := range ids {
		if err := x.pool.Send(id, protocol.Configure(x.config)); err != nil {
			return nil, x.fatal(ctx, id, fmt.Errorf("failed to configure worker: %w", err))
		}
	}

	// no file goes out before every worker has loaded its helpers
	for x.booted < n {
		if err := x.next(ctx); err != nil {
			return nil, err
		}
	}
	x.log.Debug("All workers booted", "workers", n)

	seed := x.c.cfg.NewSeed()
	x.queue = newFileQueue(randomizer.Shuffle(x.files, seed))
	x.log.Info("Randomized with seed", "seed", seed, "spec_files", len(x.files), "workers", n)

	x.reporters.RunStarted(&types.RunStartedEvent{Parallel: true, NumWorkers: n})

	for _, id := range x.ids {
		if err := x.dispatch(ctx, x.workers[id]); err != nil {
			return nil, err
		}
	}
	for !x.finished() {
		if err := x.next(ctx); err != nil {
			return nil, err
		}
	}

	x.disconnect(ctx)

	status, code, reason := x.state.overallStatus()
	done := &types.RunDoneEvent{
		OverallStatus:       status,
		TotalTime:           time.Since(x.start),
		NumWorkers:          n,
		FailedExpectations:  x.state.failedExpectations,
		DeprecationWarnings: x.state.deprecationWarnings,
		IncompleteCode:      code,
		IncompleteReason:    reason,
	}
	x.reporters.RunDone(done)
	return done, nil
}

// next waits for one worker event and handles it.
func (x *execution) next(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return x.fatal(ctx, 0, context.Cause(ctx))
	case ev := <-x.pool.Events():
		return x.handle(ctx, ev)
	}
}

func (x *execution) finished() bool {
	for _, h := range x.workers {
		if !h.idle() {
			return false
		}
	}
	return x.queue.empty() || x.stopping()
}

func (x *execution) stopping() bool {
	return x.c.cfg.StopOnSpecFailure && x.state.failed()
}

// dispatch sends the next file to an idle worker, or marks it done when no file
// will ever be sent to it again.
func (x *execution) dispatch(ctx context.Context, h *workerHandle) error {
	if x.exiting || h.done || !h.booted || !h.idle() {
		return nil
	}
	if x.stopping() {
		h.done = true
		return nil
	}
	file, ok := x.queue.next()
	if !ok {
		h.done = true
		return nil
	}
	h.running = file
	h.dispatched++
	metrics.RecordSpecFileDispatched(x.runID)
	x.log.Debug("Dispatching spec file", "worker_id", h.id, "file", file, "remaining", x.queue.remaining())
	if err := x.pool.Send(h.id, protocol.RunSpecFile(file)); err != nil {
		return x.fatal(ctx, h.id, fmt.Errorf("failed to send %s: %w", file, err))
	}
	return nil
}

func (x *execution) handle(ctx context.Context, ev pool.Event) error {
	h, ok := x.workers[ev.Worker]
	if !ok {
		x.log.Warn("Event from unknown worker", "worker_id", ev.Worker)
		return nil
	}

	switch ev.Kind {
	case pool.EventExit:
		metrics.RecordWorkerExit(h.done)
		h.exited = true
		if h.done {
			return nil
		}
		err := ErrWorkerExited
		if ev.Err != nil {
			err = fmt.Errorf("%w: %w", ErrWorkerExited, ev.Err)
		}
		return x.fatal(ctx, h.id, err)
	case pool.EventError:
		return x.fatal(ctx, h.id, fmt.Errorf("%w: %w", ErrProtocol, ev.Err))
	}

	m := ev.Message
	switch m.Type {
	case protocol.KindBooted:
		if h.booted {
			return x.fatal(ctx, h.id, fmt.Errorf("%w: worker booted twice", ErrProtocol))
		}
		h.booted = true
		x.booted++
		return nil
	case protocol.KindFatalError:
		return x.fatal(ctx, h.id, m.Error)
	case protocol.KindSpecFileDone:
		if h.idle() {
			return x.fatal(ctx, h.id, fmt.Errorf("%w: specFileDone while no spec file was running", ErrProtocol))
		}
		x.state.mergeSpecFileDone(m)
		h.completed = append(h.completed, h.running)
		x.log.Debug("Spec file done", "worker_id", h.id, "file", h.running, "status", m.OverallStatus)
		h.running = ""
		return x.dispatch(ctx, h)
	case protocol.KindReporterEvent:
		return x.forward(ctx, h, m)
	}
	return x.fatal(ctx, h.id, fmt.Errorf("%w: unexpected %s message", ErrProtocol, m.Type))
}

// forward passes a worker's reporter event on to every reporter.
func (x *execution) forward(ctx context.Context, h *workerHandle, m protocol.Message) error {
	switch m.EventName {
	case protocol.EventSuiteStarted, protocol.EventSuiteDone:
		suite, err := m.Suite()
		if err != nil {
			return x.fatal(ctx, h.id, fmt.Errorf("%w: %w", ErrProtocol, err))
		}
		if m.EventName == protocol.EventSuiteStarted {
			x.reporters.SuiteStarted(suite)
			return nil
		}
		if suite.Status == types.StatusFailed {
			x.state.hasFailures = true
		}
		x.reporters.SuiteDone(suite)
	case protocol.EventSpecStarted, protocol.EventSpecDone:
		spec, err := m.Spec()
		if err != nil {
			return x.fatal(ctx, h.id, fmt.Errorf("%w: %w", ErrProtocol, err))
		}
		if m.EventName == protocol.EventSpecStarted {
			x.reporters.SpecStarted(spec)
			return nil
		}
		if spec.Status == types.StatusFailed {
			x.state.hasFailures = true
		}
		metrics.RecordSpec(x.runID, spec.Status)
		x.reporters.SpecDone(spec)
	}
	return nil
}

// fatal aborts the run. Only the first call logs and tears the pool down; later
// calls return the same error.
func (x *execution) fatal(ctx context.Context, worker int, err error) error {
	if x.fatalErr != nil {
		return x.fatalErr
	}
	x.exiting = true
	x.fatalErr = &FatalError{Worker: worker, Err: err}
	x.logFatal(x.fatalErr)
	for _, h := range x.workers {
		h.done = true
	}
	x.disconnect(ctx)
	return x.fatalErr
}

func (x *execution) logFatal(fe *FatalError) {
	metrics.RecordErrorDetails("fatal", fe.Err)
	if stack := fe.Stack(); stack != "" {
		x.log.Error("Fatal error", "worker_id", fe.Worker, "err", fe.Err, "stack", stack)
		return
	}
	x.log.Error("Fatal error", "worker_id", fe.Worker, "err", fe.Err)
}

func (x *execution) disconnect(ctx context.Context) {
	if x.pool == nil {
		return
	}
	for _, h := range x.workers {
		h.done = true
	}
	if err := x.pool.Disconnect(ctx); err != nil {
		x.log.Warn("Failed to disconnect workers", "err", err)
	}
	for _, h := range x.workers {
		if !h.exited {
			h.exited = true
			metrics.RecordWorkerExit(true)
		}
	}
}
