package runner

import "github.com/ethereum-optimism/infra/op-specrunner/types"

func checkParallelReporter(r types.Reporter) (types.ParallelReporter, error) {
	if r == nil {
		return nil, usageErrorf("reporter is nil")
	}
	pr, ok := r.(types.ParallelReporter)
	if !ok || !pr.SupportsParallel() {
		return nil, usageErrorf("can't use %T in parallel mode: it does not declare parallel support", r)
	}
	return pr, nil
}

// dispatcher fans events out to every registered reporter.
type dispatcher struct {
	reporters []types.ParallelReporter
}

func (d *dispatcher) add(r types.Reporter) error {
	pr, err := checkParallelReporter(r)
	if err != nil {
		return err
	}
	d.reporters = append(d.reporters, pr)
	return nil
}

func (d *dispatcher) addAll(list []types.Reporter) error {
	checked := make([]types.ParallelReporter, 0, len(list))
	for i, r := range list {
		pr, err := checkParallelReporter(r)
		if err != nil {
			return usageErrorf("reporter at index %d: %v", i, err)
		}
		checked = append(checked, pr)
	}
	d.reporters = append(d.reporters, checked...)
	return nil
}

func (d *dispatcher) clear() {
	d.reporters = nil
}

func (d *dispatcher) RunStarted(e *types.RunStartedEvent) {
	for _, r := range d.reporters {
		r.RunStarted(e)
	}
}

func (d *dispatcher) SuiteStarted(s *types.SuiteResult) {
	for _, r := range d.reporters {
		r.SuiteStarted(s)
	}
}

func (d *dispatcher) SpecStarted(s *types.SpecResult) {
	for _, r := range d.reporters {
		r.SpecStarted(s)
	}
}

func (d *dispatcher) SpecDone(s *types.SpecResult) {
	for _, r := range d.reporters {
		r.SpecDone(s)
	}
}

func (d *dispatcher) SuiteDone(s *types.SuiteResult) {
	for _, r := range d.reporters {
		r.SuiteDone(s)
	}
}

func (d *dispatcher) RunDone(e *types.RunDoneEvent) {
	for _, r := range d.reporters {
		r.RunDone(e)
	}
}
