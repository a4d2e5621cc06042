package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	specrunner "github.com/ethereum-optimism/infra/op-specrunner"
	_ "github.com/ethereum-optimism/infra/op-specrunner/engine/gotest"
	"github.com/ethereum-optimism/infra/op-specrunner/exitcodes"
	"github.com/ethereum-optimism/infra/op-specrunner/flags"
	"github.com/ethereum-optimism/infra/op-specrunner/runner"
	"github.com/ethereum-optimism/infra/op-specrunner/worker"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-specrunner"
	app.Usage = "Parallel spec runner"
	app.Description = "op-specrunner runs spec files on a pool of worker processes"
	app.ArgsUsage = "[spec patterns...]"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:   specrunner.WorkerCommand,
			Usage:  "Run a worker on stdin/stdout. Started by the coordinator",
			Hidden: true,
			Flags:  cliapp.ProtectFlags(flags.WorkerFlags),
			Action: runWorker,
		},
	}
	app.ExitErrHandler = handleExitErr

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := specrunner.NewConfig(ctx, log)
	if err != nil {
		return nil, specrunner.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	app, err := specrunner.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, specrunner.NewRuntimeError(fmt.Errorf("failed to create app: %w", err))
	}
	return app, nil
}

// runWorker serves one worker on stdin/stdout. Logs go to stderr, stdout is the
// protocol channel.
func runWorker(ctx *cli.Context) error {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(os.Stderr, logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())

	id := ctx.Int(flags.WorkerID.Name)
	if err := worker.New(id, os.Stdin, os.Stdout, logger).Run(ctx.Context); err != nil {
		// the coordinator prints the error, the worker only sets its exit status
		logger.Debug("Worker stopped", "err", err)
		return cli.Exit("", exitcodes.RuntimeErr)
	}
	return nil
}

// handleExitErr exits with the code carried by err. Fatal run errors were already
// logged by the coordinator and only set the exit code.
func handleExitErr(c *cli.Context, err error) {
	if err == nil {
		return
	}
	if specrunner.IsRuntimeError(err) && runner.IsFatal(err) {
		cli.HandleExitCoder(cli.Exit("", exitcodes.RuntimeErr))
		return
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		cli.HandleExitCoder(cli.Exit(exitErr.Error(), exitErr.ExitCode()))
		return
	}
	cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
}
