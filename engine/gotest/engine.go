// Package gotest is the default test engine. A spec file is a Go package directory
// whose tests are run with `go test -json`.
package gotest

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"

	"github.com/ethereum-optimism/infra/op-specrunner/engine"
)

func init() {
	engine.Register(Name, New)
}

type Engine struct {
	log   log.Logger
	goBin string
	env   *Env
}

// New returns an engine that is not booted yet.
func New(logger log.Logger) (engine.Engine, error) {
	goBin := os.Getenv(GoBinaryEnv)
	if goBin == "" {
		goBin = DefaultGoBinary
	}
	return &Engine{log: logger.New("engine", Name), goBin: goBin}, nil
}

// Boot checks that the go toolchain is usable.
func (e *Engine) Boot(ctx context.Context) error {
	path, err := exec.LookPath(e.goBin)
	if err != nil {
		return fmt.Errorf("go binary %q not found: %w", e.goBin, err)
	}
	out, err := exec.CommandContext(ctx, path, "env", "GOVERSION").Output()
	if err != nil {
		return fmt.Errorf("failed to query go version: %w", err)
	}
	e.log.Debug("Booted engine", "go", path, "version", string(trimNewline(out)))
	e.goBin = path
	e.env = &Env{
		log:    e.log,
		goBin:  path,
		tracer: otel.Tracer("gotest engine"),
		emit:   &fanout{},
		ids:    &ids{},
		vars:   make(map[string]string),
	}
	return nil
}

// Env returns the environment of a booted engine, or nil before Boot.
func (e *Engine) Env() engine.Env {
	if e.env == nil {
		return nil
	}
	return e.env
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
