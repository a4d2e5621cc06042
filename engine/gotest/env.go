package gotest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"

	"github.com/ethereum-optimism/infra/op-specrunner/engine"
	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/testlist"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

var ErrNoSpecFile = errors.New("no spec file loaded")

// Env runs one package at a time. Helper variables and requires survive Reset;
// everything about the loaded package does not.
type Env struct {
	log    log.Logger
	goBin  string
	tracer trace.Tracer
	emit   *fanout
	ids    *ids

	opts     engine.Options
	vars     map[string]string
	warnings []types.DeprecationWarning

	pkgDir string
	specs  []string
}

var _ engine.Env = (*Env)(nil)

func (e *Env) Configure(opts engine.Options) error {
	switch opts.Loader {
	case "":
		opts.Loader = protocol.LoaderParse
	case protocol.LoaderParse, protocol.LoaderVet:
	default:
		return fmt.Errorf("unknown loader %q, want %q or %q", opts.Loader, protocol.LoaderParse, protocol.LoaderVet)
	}
	if opts.Filter != "" {
		if _, err := regexp.Compile(opts.Filter); err != nil {
			return fmt.Errorf("invalid spec filter %q: %w", opts.Filter, err)
		}
	}
	e.warnings = nil
	if _, ok := opts.Env.Vars["GOFLAGS"]; ok {
		e.warnings = append(e.warnings, types.DeprecationWarning{
			Message: "Setting GOFLAGS through env vars is deprecated and may conflict with flags set by the runner; use the timeout, race, short and tags options instead.",
		})
	}
	e.opts = opts
	return nil
}

func (e *Env) AddReporter(r types.Reporter) {
	e.emit.add(r)
}

func (e *Env) ClearReporters() {
	e.emit.clear()
}

// LoadRequire builds a Go package so that the spec packages using it start from a
// warm build cache. A package that does not build is a boot failure.
func (e *Env) LoadRequire(ctx context.Context, name string) error {
	tail := newTailBuffer(defaultStderrTailBytes)
	cmd := exec.CommandContext(ctx, e.goBin, BuildCommand, name)
	cmd.Dir = e.opts.SpecDir
	cmd.Env = e.environ()
	cmd.Stdout = tail
	cmd.Stderr = tail
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to build required package %s: %w\n%s", name, err, strings.TrimSpace(tail.String()))
	}
	e.log.Debug("Loaded require", "package", name)
	return nil
}

// LoadHelper exports the variables of a dotenv file to every spec package.
func (e *Env) LoadHelper(ctx context.Context, path string) error {
	vars, err := parseDotenv(path)
	if err != nil {
		return err
	}
	maps.Copy(e.vars, vars)
	e.log.Debug("Loaded helper", "file", path, "vars", len(vars))
	return nil
}

func (e *Env) LoadSpecFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a package directory", path)
	}
	specs, err := testlist.FindTestFunctions(path)
	if err != nil {
		return err
	}
	if e.opts.Loader == protocol.LoaderVet {
		tail := newTailBuffer(defaultStderrTailBytes)
		cmd := exec.CommandContext(ctx, e.goBin, VetCommand, CurrentDirPattern)
		cmd.Dir = path
		cmd.Env = e.environ()
		cmd.Stdout = tail
		cmd.Stderr = tail
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("go vet failed: %w\n%s", err, strings.TrimSpace(tail.String()))
		}
	}
	e.pkgDir = path
	e.specs = specs
	return nil
}

func (e *Env) Reset() error {
	e.pkgDir = ""
	e.specs = nil
	return nil
}

// Execute runs the loaded package and reports its tests. Failing tests are reported,
// not returned; an error means the go command could not be run at all.
func (e *Env) Execute(ctx context.Context) error {
	if e.pkgDir == "" {
		return ErrNoSpecFile
	}
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("spec file %s", e.pkgDir))
	defer span.End()
	span.SetAttributes(attribute.Int("specs.defined", len(e.specs)))

	cmd := exec.CommandContext(ctx, e.goBin, e.testArgs()...)
	cmd.Dir = e.pkgDir
	cmd.Env = telemetry.InstrumentEnvironment(ctx, e.environ())
	stderr := newTailBuffer(defaultStderrTailBytes)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to capture go test output: %w", err)
	}

	e.emit.RunStarted(&types.RunStartedEvent{TotalSpecsDefined: len(e.specs)})
	start := time.Now()

	e.log.Debug("Running spec file", "dir", e.pkgDir, "args", cmd.Args)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start go test: %w", err)
	}

	mapper := newEventMapper(e.emit, e.ids, e.pkgDir)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		event, err := parseTestEvent(line)
		if err != nil {
			mapper.rawOutput(string(line))
			continue
		}
		mapper.handle(event)
	}
	if err := scanner.Err(); err != nil {
		e.log.Warn("Failed to read go test output", "dir", e.pkgDir, "err", err)
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("go test failed: %w", waitErr)
	}

	done := mapper.finish(stderr.String())
	done.TotalTime = time.Since(start)
	done.DeprecationWarnings = append(done.DeprecationWarnings, e.warnings...)
	if done.OverallStatus == types.StatusFailed {
		span.SetStatus(codes.Error, "spec file failed")
	}
	e.emit.RunDone(done)
	return nil
}

func (e *Env) testArgs() []string {
	args := []string{TestCommand, JSONFlag, VerboseFlag, CountFlag, DisableCacheCount}
	env := e.opts.Env
	if e.opts.Filter != "" {
		args = append(args, RunFlag, e.opts.Filter)
	}
	if env.Timeout > 0 {
		args = append(args, TimeoutFlag, env.Timeout.String())
	}
	if env.FailFast {
		args = append(args, FailFastFlag)
	}
	if env.Short {
		args = append(args, ShortFlag)
	}
	if env.Race {
		args = append(args, RaceFlag)
	}
	if len(env.Tags) > 0 {
		args = append(args, TagsFlag, strings.Join(env.Tags, ","))
	}
	return append(args, CurrentDirPattern)
}

// environ is the process environment plus helper variables plus configured vars,
// later sources winning.
func (e *Env) environ() []string {
	env := os.Environ()
	for _, src := range []map[string]string{e.vars, e.opts.Env.Vars} {
		for _, k := range slices.Sorted(maps.Keys(src)) {
			env = append(env, k+"="+src[k])
		}
	}
	return env
}
