package flags

import (
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-specrunner/engine"
	"github.com/ethereum-optimism/infra/op-specrunner/hooks"
	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/reporting"
	"github.com/ethereum-optimism/infra/op-specrunner/service"
)

const EnvVarPrefix = "OP_SPECRUNNER"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Path to a YAML (.yaml, .yml) or TOML (.toml) config file. Flags override its values",
	}
	SpecDir = &cli.StringFlag{
		Name:    "spec-dir",
		Value:   ".",
		EnvVars: prefixEnvVars("SPEC_DIR"),
		Usage:   "Directory that spec patterns and helper globs are relative to",
	}
	Workers = &cli.IntFlag{
		Name:    "workers",
		Value:   runtime.NumCPU(),
		EnvVars: prefixEnvVars("WORKERS"),
		Usage:   "Number of worker processes to run spec files on",
	}
	Filter = &cli.StringFlag{
		Name:    "filter",
		EnvVars: prefixEnvVars("FILTER"),
		Usage:   "Only run specs whose name matches this regular expression",
	}
	Helpers = &cli.StringSliceFlag{
		Name:    "helper",
		EnvVars: prefixEnvVars("HELPER"),
		Usage:   "Glob of helper files every worker loads before running specs. Can be repeated",
	}
	Requires = &cli.StringSliceFlag{
		Name:    "require",
		EnvVars: prefixEnvVars("REQUIRE"),
		Usage:   "Module every worker loads before helpers. Can be repeated",
	}
	Engine = &cli.StringFlag{
		Name:    "engine",
		Value:   engine.DefaultName,
		EnvVars: prefixEnvVars("ENGINE"),
		Usage:   "Name of the test engine to run spec files with",
	}
	EnginePath = &cli.StringFlag{
		Name:    "engine-path",
		EnvVars: prefixEnvVars("ENGINE_PATH"),
		Usage:   "Path to a Go plugin providing the test engine. Overrides --engine",
	}
	Loader = &cli.StringFlag{
		Name:    "loader",
		Value:   protocol.LoaderParse,
		EnvVars: prefixEnvVars("LOADER"),
		Usage:   fmt.Sprintf("How spec files are loaded: %q or %q", protocol.LoaderParse, protocol.LoaderVet),
	}
	StopOnSpecFailure = &cli.BoolFlag{
		Name:    "stop-on-spec-failure",
		EnvVars: prefixEnvVars("STOP_ON_SPEC_FAILURE"),
		Usage:   "Stop handing out spec files after the first failure",
	}
	Reporters = &cli.StringSliceFlag{
		Name:    "reporters",
		Value:   cli.NewStringSlice(reporting.NameConsole),
		EnvVars: prefixEnvVars("REPORTERS"),
		Usage:   fmt.Sprintf("Reporters to attach, any of %v", reporting.Names),
	}
	EventsFile = &cli.StringFlag{
		Name:    "events-file",
		EnvVars: prefixEnvVars("EVENTS_FILE"),
		Usage:   "File the json reporter writes events to",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   reporting.DefaultProgressInterval,
		EnvVars: prefixEnvVars("PROGRESS_INTERVAL"),
		Usage:   "Minimum interval between progress log lines",
	}
	Color = &cli.BoolFlag{
		Name:    "color",
		Value:   true,
		EnvVars: prefixEnvVars("COLOR"),
		Usage:   "Use colors in console output",
	}
	InProcess = &cli.BoolFlag{
		Name:    "in-process",
		EnvVars: prefixEnvVars("IN_PROCESS"),
		Usage:   "Run workers as goroutines instead of subprocesses",
	}
	DisconnectTimeout = &cli.DurationFlag{
		Name:    "disconnect-timeout",
		Value:   30 * time.Second,
		EnvVars: prefixEnvVars("DISCONNECT_TIMEOUT"),
		Usage:   "How long workers get to exit before they are killed",
	}
	GlobalSetup = &cli.StringFlag{
		Name:    "global-setup",
		EnvVars: prefixEnvVars("GLOBAL_SETUP"),
		Usage:   "Shell command run once before any worker starts",
	}
	GlobalSetupTimeout = &cli.DurationFlag{
		Name:    "global-setup-timeout",
		Value:   hooks.DefaultTimeout,
		EnvVars: prefixEnvVars("GLOBAL_SETUP_TIMEOUT"),
		Usage:   "Timeout for the global setup command",
	}
	GlobalTeardown = &cli.StringFlag{
		Name:    "global-teardown",
		EnvVars: prefixEnvVars("GLOBAL_TEARDOWN"),
		Usage:   "Shell command run once after the run",
	}
	GlobalTeardownTimeout = &cli.DurationFlag{
		Name:    "global-teardown-timeout",
		Value:   hooks.DefaultTimeout,
		EnvVars: prefixEnvVars("GLOBAL_TEARDOWN_TIMEOUT"),
		Usage:   "Timeout for the global teardown command",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		EnvVars: prefixEnvVars("TIMEOUT"),
		Usage:   "Timeout for a single spec file (go test -timeout). 0 uses the engine default",
	}
	FailFast = &cli.BoolFlag{
		Name:    "fail-fast",
		EnvVars: prefixEnvVars("FAIL_FAST"),
		Usage:   "Stop a spec file after its first failing spec",
	}
	Short = &cli.BoolFlag{
		Name:    "short",
		EnvVars: prefixEnvVars("SHORT"),
		Usage:   "Run specs in short mode",
	}
	Race = &cli.BoolFlag{
		Name:    "race",
		EnvVars: prefixEnvVars("RACE"),
		Usage:   "Enable the race detector",
	}
	Tags = &cli.StringSliceFlag{
		Name:    "tags",
		EnvVars: prefixEnvVars("TAGS"),
		Usage:   "Build tags for spec files",
	}
	HealthzEnabled = &cli.BoolFlag{
		Name:    "healthz.enabled",
		EnvVars: prefixEnvVars("HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz while the run is going",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   service.HealthzHost,
		EnvVars: prefixEnvVars("HEALTHZ_ADDR"),
		Usage:   "Health check listening address",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   service.HealthzPort,
		EnvVars: prefixEnvVars("HEALTHZ_PORT"),
		Usage:   "Health check listening port",
	}
)

// WorkerID is only used by the hidden worker command.
var WorkerID = &cli.IntFlag{
	Name:     "id",
	Required: true,
	EnvVars:  prefixEnvVars("WORKER_ID"),
	Usage:    "Worker id assigned by the coordinator",
}

var optionalFlags = []cli.Flag{
	ConfigFile,
	SpecDir,
	Workers,
	Filter,
	Helpers,
	Requires,
	Engine,
	EnginePath,
	Loader,
	StopOnSpecFailure,
	Reporters,
	EventsFile,
	ProgressInterval,
	Color,
	InProcess,
	DisconnectTimeout,
	GlobalSetup,
	GlobalSetupTimeout,
	GlobalTeardown,
	GlobalTeardownTimeout,
	Timeout,
	FailFast,
	Short,
	Race,
	Tags,
	HealthzEnabled,
	HealthzAddr,
	HealthzPort,
}

var Flags []cli.Flag

// WorkerFlags are the flags of the worker command.
var WorkerFlags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, optionalFlags...)
	WorkerFlags = append([]cli.Flag{WorkerID}, oplog.CLIFlags(EnvVarPrefix)...)
}
