package types

import (
	"errors"
	"time"
)

// EnvConfig configures the test engine inside every worker. It crosses the process
// boundary as JSON, so everything except SpecFilter must be plain data.
type EnvConfig struct {
	// Random and Seed exist so that callers asking for a fixed order can be told
	// that parallel runs always randomize.
	Random *bool  `json:"random,omitempty" yaml:"random" toml:"random"`
	Seed   string `json:"seed,omitempty" yaml:"seed" toml:"seed"`

	Timeout  time.Duration     `json:"timeout,omitempty" yaml:"timeout" toml:"timeout"`
	FailFast bool              `json:"failFast,omitempty" yaml:"fail_fast" toml:"fail_fast"`
	Short    bool              `json:"short,omitempty" yaml:"short" toml:"short"`
	Race     bool              `json:"race,omitempty" yaml:"race" toml:"race"`
	Tags     []string          `json:"tags,omitempty" yaml:"tags" toml:"tags"`
	Vars     map[string]string `json:"vars,omitempty" yaml:"vars" toml:"vars"`

	// SpecFilter cannot be sent to a worker. It is only here so that it can be rejected.
	SpecFilter func(fullName string) bool `json:"-" yaml:"-" toml:"-"`
}

var (
	ErrRandomDisabled     = errors.New("randomization cannot be disabled in parallel mode")
	ErrSeedSet            = errors.New("random seed cannot be set in parallel mode")
	ErrFunctionSpecFilter = errors.New("spec filter functions are not supported in parallel mode; use a string or regular expression filter instead")
)

// CheckParallel returns an error if the configuration cannot be used for a parallel run.
func (c EnvConfig) CheckParallel() error {
	if c.Random != nil && !*c.Random {
		return ErrRandomDisabled
	}
	if c.Seed != "" {
		return ErrSeedSet
	}
	if c.SpecFilter != nil {
		return ErrFunctionSpecFilter
	}
	return nil
}
