package reporting

import (
	"github.com/ethereum-optimism/infra/op-specrunner/metrics"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// Metrics records suite and spec outcomes as prometheus metrics.
type Metrics struct {
	types.NopReporter
}

var _ types.ParallelReporter = Metrics{}

func (Metrics) SupportsParallel() bool { return true }

func (Metrics) SpecDone(s *types.SpecResult) {
	if s.Status == types.StatusPassed || s.Status == types.StatusFailed {
		metrics.ObserveSpecDuration(s.Status, s.Duration)
	}
}

func (Metrics) SuiteDone(s *types.SuiteResult) {
	metrics.RecordSuite(s.Status)
}

func (Metrics) RunDone(e *types.RunDoneEvent) {
	metrics.RecordDeprecationWarnings(len(e.DeprecationWarnings))
}
