package specrunner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ethereum/go-ethereum/log"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-specrunner/discovery"
	"github.com/ethereum-optimism/infra/op-specrunner/flags"
	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/reporting"
	"github.com/ethereum-optimism/infra/op-specrunner/service"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// FileConfig is the shape of a --config file.
type FileConfig struct {
	SpecDir               string          `yaml:"spec_dir" toml:"spec_dir"`
	SpecFiles             []string        `yaml:"spec_files" toml:"spec_files"`
	Helpers               []string        `yaml:"helpers" toml:"helpers"`
	Requires              []string        `yaml:"requires" toml:"requires"`
	Engine                string          `yaml:"engine" toml:"engine"`
	EnginePath            string          `yaml:"engine_path" toml:"engine_path"`
	Loader                string          `yaml:"loader" toml:"loader"`
	Workers               int             `yaml:"workers" toml:"workers"`
	Filter                string          `yaml:"filter" toml:"filter"`
	StopOnSpecFailure     bool            `yaml:"stop_on_spec_failure" toml:"stop_on_spec_failure"`
	GlobalSetup           string          `yaml:"global_setup" toml:"global_setup"`
	GlobalSetupTimeout    time.Duration   `yaml:"global_setup_timeout" toml:"global_setup_timeout"`
	GlobalTeardown        string          `yaml:"global_teardown" toml:"global_teardown"`
	GlobalTeardownTimeout time.Duration   `yaml:"global_teardown_timeout" toml:"global_teardown_timeout"`
	Reporters             []string        `yaml:"reporters" toml:"reporters"`
	EventsFile            string          `yaml:"events_file" toml:"events_file"`
	Env                   types.EnvConfig `yaml:"env" toml:"env"`
}

// LoadFileConfig reads a YAML or TOML config file, picked by extension.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &fc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (want .yaml, .yml or .toml)", ext)
	}
	return &fc, nil
}

// Config holds the application configuration
type Config struct {
	SpecDir      string   // Absolute directory spec patterns are relative to
	SpecPatterns []string // Patterns selecting spec packages
	Helpers      []string
	Requires     []string
	Engine       string
	EnginePath   string
	Loader       string
	Workers      int
	Filter       string
	InProcess    bool // Run workers as goroutines
	// WorkerArgs are passed to every worker subprocess after "worker --id N".
	WorkerArgs []string

	StopOnSpecFailure     bool
	GlobalSetup           string
	GlobalSetupTimeout    time.Duration
	GlobalTeardown        string
	GlobalTeardownTimeout time.Duration
	DisconnectTimeout     time.Duration

	Reporters        []string
	EventsFile       string
	ProgressInterval time.Duration
	Color            bool

	Env     types.EnvConfig
	Service service.Config
	Log     log.Logger
}

// NewConfig creates a new Config from cli context. Flags that are set win over the
// config file, which wins over flag defaults.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	fc := &FileConfig{}
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		var err error
		if fc, err = LoadFileConfig(path); err != nil {
			return nil, err
		}
	}

	str := func(f *cli.StringFlag, fileValue string) string {
		if ctx.IsSet(f.Name) || fileValue == "" {
			return ctx.String(f.Name)
		}
		return fileValue
	}
	slice := func(f *cli.StringSliceFlag, fileValue []string) []string {
		if ctx.IsSet(f.Name) || len(fileValue) == 0 {
			return ctx.StringSlice(f.Name)
		}
		return fileValue
	}
	dur := func(f *cli.DurationFlag, fileValue time.Duration) time.Duration {
		if ctx.IsSet(f.Name) || fileValue == 0 {
			return ctx.Duration(f.Name)
		}
		return fileValue
	}
	boolean := func(f *cli.BoolFlag, fileValue bool) bool {
		if ctx.IsSet(f.Name) {
			return ctx.Bool(f.Name)
		}
		return fileValue || ctx.Bool(f.Name)
	}

	specDir, err := filepath.Abs(str(flags.SpecDir, fc.SpecDir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for spec directory: %w", err)
	}

	patterns := fc.SpecFiles
	if ctx.NArg() > 0 {
		patterns = ctx.Args().Slice()
	}
	if len(patterns) == 0 {
		patterns = []string{discovery.DefaultSpecPattern}
	}

	workers := ctx.Int(flags.Workers.Name)
	if !ctx.IsSet(flags.Workers.Name) && fc.Workers != 0 {
		workers = fc.Workers
	}

	env := fc.Env
	if ctx.IsSet(flags.Timeout.Name) || env.Timeout == 0 {
		env.Timeout = ctx.Duration(flags.Timeout.Name)
	}
	env.FailFast = boolean(flags.FailFast, env.FailFast)
	env.Short = boolean(flags.Short, env.Short)
	env.Race = boolean(flags.Race, env.Race)
	env.Tags = slice(flags.Tags, env.Tags)

	metricsCfg := opmetrics.ReadCLIConfig(ctx)

	cfg := &Config{
		SpecDir:               specDir,
		SpecPatterns:          patterns,
		Helpers:               slice(flags.Helpers, fc.Helpers),
		Requires:              slice(flags.Requires, fc.Requires),
		Engine:                str(flags.Engine, fc.Engine),
		EnginePath:            str(flags.EnginePath, fc.EnginePath),
		Loader:                str(flags.Loader, fc.Loader),
		Workers:               workers,
		Filter:                str(flags.Filter, fc.Filter),
		InProcess:             ctx.Bool(flags.InProcess.Name),
		WorkerArgs:            workerArgs(ctx),
		StopOnSpecFailure:     boolean(flags.StopOnSpecFailure, fc.StopOnSpecFailure),
		GlobalSetup:           str(flags.GlobalSetup, fc.GlobalSetup),
		GlobalSetupTimeout:    dur(flags.GlobalSetupTimeout, fc.GlobalSetupTimeout),
		GlobalTeardown:        str(flags.GlobalTeardown, fc.GlobalTeardown),
		GlobalTeardownTimeout: dur(flags.GlobalTeardownTimeout, fc.GlobalTeardownTimeout),
		DisconnectTimeout:     ctx.Duration(flags.DisconnectTimeout.Name),
		Reporters:             slice(flags.Reporters, fc.Reporters),
		EventsFile:            str(flags.EventsFile, fc.EventsFile),
		ProgressInterval:      ctx.Duration(flags.ProgressInterval.Name),
		Color:                 ctx.Bool(flags.Color.Name),
		Env:                   env,
		Service: service.Config{
			HealthzEnabled: ctx.Bool(flags.HealthzEnabled.Name),
			HealthzHost:    ctx.String(flags.HealthzAddr.Name),
			HealthzPort:    ctx.Int(flags.HealthzPort.Name),
			MetricsEnabled: metricsCfg.Enabled,
			MetricsHost:    metricsCfg.ListenAddr,
			MetricsPort:    metricsCfg.ListenPort,
		},
		Log: log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the configuration.
func (c *Config) Check() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	switch c.Loader {
	case "", protocol.LoaderParse, protocol.LoaderVet:
	default:
		return fmt.Errorf("invalid loader %q, must be %q or %q", c.Loader, protocol.LoaderParse, protocol.LoaderVet)
	}
	if c.Engine == "" && c.EnginePath == "" {
		return errors.New("an engine name or engine path is required")
	}
	if err := c.Env.CheckParallel(); err != nil {
		return err
	}
	for _, r := range c.Reporters {
		if strings.TrimSpace(r) == reporting.NameJSON && c.EventsFile == "" {
			return fmt.Errorf("the %s reporter requires --%s", reporting.NameJSON, flags.EventsFile.Name)
		}
	}
	return nil
}

// workerArgs forwards explicitly set log flags to worker subprocesses.
func workerArgs(ctx *cli.Context) []string {
	var args []string
	for _, name := range []string{oplog.LevelFlagName, oplog.FormatFlagName, oplog.ColorFlagName} {
		if !ctx.IsSet(name) {
			continue
		}
		if name == oplog.ColorFlagName {
			args = append(args, "--"+name+"="+strconv.FormatBool(ctx.Bool(name)))
			continue
		}
		args = append(args, "--"+name, ctx.String(name))
	}
	return args
}
