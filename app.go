// Package specrunner runs spec files in parallel on a pool of worker processes.
package specrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/ethereum-optimism/infra/op-specrunner/discovery"
	"github.com/ethereum-optimism/infra/op-specrunner/hooks"
	"github.com/ethereum-optimism/infra/op-specrunner/pool"
	"github.com/ethereum-optimism/infra/op-specrunner/reporting"
	"github.com/ethereum-optimism/infra/op-specrunner/runner"
	"github.com/ethereum-optimism/infra/op-specrunner/service"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
	"github.com/ethereum-optimism/infra/op-specrunner/worker"
)

// WorkerCommand is the hidden subcommand worker subprocesses are started with.
const WorkerCommand = "worker"

// executor is the part of the coordinator the app drives.
type executor interface {
	Execute(ctx context.Context, files []string, filter string) (*types.RunDoneEvent, error)
}

// app implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &app{}

// app runs the configured spec files once and then asks the lifecycle to shut down.
type app struct {
	config   *Config
	version  string
	log      log.Logger
	files    []string
	runner   executor
	service  *service.Service
	closers  []io.Closer
	result   *types.RunDoneEvent
	running  atomic.Bool
	stopOnce sync.Once

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*app, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	logger := config.Log

	files, err := discovery.SpecPackages(config.SpecDir, config.SpecPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve spec files: %w", err)
	}
	logger.Info("Resolved spec files", "spec_dir", config.SpecDir, "patterns", config.SpecPatterns, "spec_files", len(files))

	reporters, closers, err := reporting.New(config.Reporters, reporting.Options{
		Out:              os.Stdout,
		Color:            config.Color,
		Logger:           logger,
		ProgressInterval: config.ProgressInterval,
		EventsFile:       config.EventsFile,
	})
	if err != nil {
		return nil, err
	}

	coordinator, err := runner.New(runner.Config{
		Launcher:              launcher(config),
		NumWorkers:            config.Workers,
		SpecDir:               config.SpecDir,
		Helpers:               config.Helpers,
		Requires:              config.Requires,
		Engine:                config.Engine,
		EnginePath:            config.EnginePath,
		Loader:                config.Loader,
		Env:                   config.Env,
		Filter:                config.Filter,
		StopOnSpecFailure:     config.StopOnSpecFailure,
		GlobalSetup:           hooks.Command(hooks.GlobalSetup, config.GlobalSetup, logger),
		GlobalSetupTimeout:    config.GlobalSetupTimeout,
		GlobalTeardown:        hooks.Command(hooks.GlobalTeardown, config.GlobalTeardown, logger),
		GlobalTeardownTimeout: config.GlobalTeardownTimeout,
		DisconnectTimeout:     config.DisconnectTimeout,
		Reporters:             reporters,
	}, logger)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	coordinator.SetExitOnCompletion(false)

	return newApp(config, version, files, coordinator, closers, shutdownCallback), nil
}

func newApp(config *Config, version string, files []string, r executor, closers []io.Closer, shutdownCallback func(error)) *app {
	return &app{
		config:           config,
		version:          version,
		log:              config.Log,
		files:            files,
		runner:           r,
		service:          service.New(config.Service, config.Log),
		closers:          closers,
		shutdownCallback: shutdownCallback,
	}
}

// launcher picks how workers are started.
func launcher(config *Config) pool.Launcher {
	if config.InProcess {
		return &pool.InProcessLauncher{
			Run: func(ctx context.Context, id int, in io.Reader, out io.Writer) error {
				return worker.New(id, in, out, config.Log).Run(ctx)
			},
		}
	}
	return &pool.ProcessLauncher{
		Args: func(id int) []string {
			return append([]string{WorkerCommand, "--id", strconv.Itoa(id)}, config.WorkerArgs...)
		},
		Log: config.Log,
	}
}

// Start runs the spec files once.
// Start implements the cliapp.Lifecycle interface.
func (a *app) Start(ctx context.Context) error {
	a.running.Store(true)
	a.log.Info("Starting op-specrunner", "version", a.version, "workers", a.config.Workers, "spec_files", len(a.files))

	if err := a.service.Start(); err != nil {
		a.cleanup(ctx)
		return NewRuntimeError(fmt.Errorf("failed to start service: %w", err))
	}

	result, err := a.runner.Execute(ctx, a.files, a.config.Filter)
	a.cleanup(ctx)
	if err != nil {
		if !runner.IsFatal(err) {
			a.log.Error("Run aborted", "err", err)
		}
		return NewRuntimeError(err)
	}
	a.result = result
	a.log.Info("Run completed", "status", result.OverallStatus, "duration", result.TotalTime)

	if result.OverallStatus != types.StatusPassed {
		return &RunStatusError{Status: result.OverallStatus, Reason: result.IncompleteReason}
	}

	go func() {
		a.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (a *app) Stop(ctx context.Context) error {
	a.log.Info("Stopping op-specrunner")
	a.cleanup(ctx)
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (a *app) Stopped() bool {
	return !a.running.Load()
}

// Result is the outcome of the run, nil until it completed.
func (a *app) Result() *types.RunDoneEvent {
	return a.result
}

func (a *app) cleanup(ctx context.Context) {
	a.stopOnce.Do(func() {
		for _, c := range a.closers {
			if err := c.Close(); err != nil {
				a.log.Warn("Failed to close reporter output", "err", err)
			}
		}
		if err := a.service.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("Failed to shut down service", "err", err)
		}
		a.running.Store(false)
	})
}
