// Package reporting holds the reporters that can be attached to a parallel run.
package reporting

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

const (
	NameConsole  = "console"
	NameProgress = "progress"
	NameJSON     = "json"
	NameMetrics  = "metrics"
)

// Names lists every reporter that can be selected by name.
var Names = []string{NameConsole, NameProgress, NameJSON, NameMetrics}

var ErrUnknownReporter = errors.New("unknown reporter")

// Options configure the reporters built by New.
type Options struct {
	Out              io.Writer
	Color            bool
	Logger           log.Logger
	ProgressInterval time.Duration
	// EventsFile is where the json reporter writes. Required when it is selected.
	EventsFile string
}

// New builds the named reporters in order. The returned closers must be closed
// once the run is over.
func New(names []string, opts Options) ([]types.Reporter, []io.Closer, error) {
	var (
		reporters []types.Reporter
		closers   []io.Closer
	)
	fail := func(i int, err error) ([]types.Reporter, []io.Closer, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, fmt.Errorf("reporter at index %d: %w", i, err)
	}
	for i, name := range names {
		switch strings.TrimSpace(name) {
		case NameConsole:
			reporters = append(reporters, NewConsole(opts.Out, opts.Color))
		case NameProgress:
			reporters = append(reporters, NewProgress(opts.Logger, opts.ProgressInterval))
		case NameJSON:
			if opts.EventsFile == "" {
				return fail(i, errors.New("the json reporter needs an events file"))
			}
			j, err := CreateJSONLines(opts.EventsFile, opts.Logger)
			if err != nil {
				return fail(i, err)
			}
			reporters = append(reporters, j)
			closers = append(closers, j)
		case NameMetrics:
			reporters = append(reporters, Metrics{})
		default:
			return fail(i, fmt.Errorf("%w %q, expected one of %s", ErrUnknownReporter, name, strings.Join(Names, ", ")))
		}
	}
	return reporters, closers, nil
}
