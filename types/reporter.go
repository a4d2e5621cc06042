package types

// Reporter receives the lifecycle events of a run.
type Reporter interface {
	RunStarted(event *RunStartedEvent)
	SuiteStarted(result *SuiteResult)
	SpecStarted(result *SpecResult)
	SpecDone(result *SpecResult)
	SuiteDone(result *SuiteResult)
	RunDone(event *RunDoneEvent)
}

// ParallelReporter is a Reporter that can be registered with the parallel
// coordinator. Events from different workers interleave, so only reporters that
// declare support for that are accepted.
type ParallelReporter interface {
	Reporter
	SupportsParallel() bool
}

// NopReporter ignores every event. Embed it to implement only some of the hooks.
type NopReporter struct{}

func (NopReporter) RunStarted(*RunStartedEvent) {}
func (NopReporter) SuiteStarted(*SuiteResult)   {}
func (NopReporter) SpecStarted(*SpecResult)     {}
func (NopReporter) SpecDone(*SpecResult)        {}
func (NopReporter) SuiteDone(*SuiteResult)      {}
func (NopReporter) RunDone(*RunDoneEvent)       {}

var _ Reporter = NopReporter{}
