package gotest

import "github.com/ethereum-optimism/infra/op-specrunner/types"

// fanout delivers every event to each registered reporter in registration order.
type fanout struct {
	reporters []types.Reporter
}

func (f *fanout) add(r types.Reporter) { f.reporters = append(f.reporters, r) }
func (f *fanout) clear()               { f.reporters = nil }

func (f *fanout) RunStarted(e *types.RunStartedEvent) {
	for _, r := range f.reporters {
		r.RunStarted(e)
	}
}

func (f *fanout) SuiteStarted(s *types.SuiteResult) {
	for _, r := range f.reporters {
		r.SuiteStarted(s)
	}
}

func (f *fanout) SpecStarted(s *types.SpecResult) {
	for _, r := range f.reporters {
		r.SpecStarted(s)
	}
}

func (f *fanout) SpecDone(s *types.SpecResult) {
	for _, r := range f.reporters {
		r.SpecDone(s)
	}
}

func (f *fanout) SuiteDone(s *types.SuiteResult) {
	for _, r := range f.reporters {
		r.SuiteDone(s)
	}
}

func (f *fanout) RunDone(e *types.RunDoneEvent) {
	for _, r := range f.reporters {
		r.RunDone(e)
	}
}

var _ types.Reporter = (*fanout)(nil)
