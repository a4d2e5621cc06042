// Package engine defines the test engine a worker drives, and how engines are found.
package engine

import (
	"context"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// Options configures an engine environment before any file is loaded.
type Options struct {
	SpecDir string
	Env     types.EnvConfig
	// Filter selects specs by full name. Engines interpret it as a regular expression.
	Filter string
	// Loader selects how spec files are loaded; the meaning is engine specific.
	Loader string
}

// Engine is a pluggable test engine. A worker boots exactly one engine.
type Engine interface {
	Boot(ctx context.Context) error
	Env() Env
}

// Env is the environment of a booted engine. Calls are never concurrent.
type Env interface {
	Configure(opts Options) error
	AddReporter(r types.Reporter)
	ClearReporters()

	// LoadRequire and LoadHelper run once, at boot, in configuration order.
	LoadRequire(ctx context.Context, name string) error
	LoadHelper(ctx context.Context, path string) error

	// LoadSpecFile prepares one spec file for Execute. Errors are load errors, not
	// test failures.
	LoadSpecFile(ctx context.Context, path string) error
	// Execute runs the loaded specs, reporting to every registered reporter and
	// finishing with exactly one RunDone.
	Execute(ctx context.Context) error
	// Reset drops everything a previous spec file left behind.
	Reset() error
}
