package gotest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Time       time.Time // Time the event occurred
	Action     string    // The action taken (run, pause, cont, pass, fail, skip, output, build-output, build-fail)
	Package    string    // The package being tested
	ImportPath string    // Set on build-output and build-fail events
	Test       string    // The test function name (may be empty for package events)
	Output     string    // Output text (may be empty)
	Elapsed    float64   // Elapsed time in seconds for the specific action
}

func parseTestEvent(line []byte) (TestEvent, error) {
	var event TestEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return event, err
	}
	if event.Action == "" {
		return event, fmt.Errorf("not a test event")
	}
	return event, nil
}

// ids hands out suite and spec ids that are unique for the lifetime of an engine.
type ids struct {
	suite, spec int
}

func (i *ids) nextSuite() string {
	id := fmt.Sprintf("suite%d", i.suite)
	i.suite++
	return id
}

func (i *ids) nextSpec() string {
	id := fmt.Sprintf("spec%d", i.spec)
	i.spec++
	return id
}

type specState struct {
	result  *types.SpecResult
	output  strings.Builder
	subOut  map[string]*strings.Builder
	failed  []types.ExpectationResult
	passed  []types.ExpectationResult
	started time.Time
	done    bool
}

// eventMapper turns the test2json stream of one package into suite and spec events.
// Top-level tests are specs; subtests become expectations of their parent spec.
type eventMapper struct {
	emit    *fanout
	ids     *ids
	pkgDir  string
	pkgName string

	suite     *types.SuiteResult
	pkgOutput strings.Builder
	pkgStatus string
	elapsed   float64

	specs       map[string]*specState
	order       []*specState
	totalSpecs  int
	failedSpecs int
}

func newEventMapper(emit *fanout, ids *ids, pkgDir string) *eventMapper {
	return &eventMapper{
		emit:   emit,
		ids:    ids,
		pkgDir: pkgDir,
		specs:  make(map[string]*specState),
	}
}

func (m *eventMapper) handle(event TestEvent) {
	switch event.Action {
	case ActionBuildOutput:
		m.pkgOutput.WriteString(event.Output)
		return
	case ActionBuildFail:
		m.pkgStatus = ActionFail
		return
	}

	if event.Package != "" && m.pkgName == "" {
		m.pkgName = event.Package
	}
	m.ensureSuite()

	if event.Test == "" {
		m.handlePackageEvent(event)
		return
	}

	root, sub, isSub := strings.Cut(event.Test, "/")
	if !isSub {
		m.handleSpecEvent(event)
		return
	}
	m.handleSubtestEvent(event, root, sub)
}

// rawOutput records a stdout line that is not a test2json event.
func (m *eventMapper) rawOutput(line string) {
	m.pkgOutput.WriteString(line)
	m.pkgOutput.WriteString("\n")
}

func (m *eventMapper) ensureSuite() {
	if m.suite != nil {
		return
	}
	name := m.pkgName
	if name == "" {
		name = filepath.Base(m.pkgDir)
	}
	m.suite = &types.SuiteResult{
		ID:          m.ids.nextSuite(),
		Description: filepath.Base(m.pkgDir),
		FullName:    name,
		Filename:    m.pkgDir,
	}
	started := *m.suite
	m.emit.SuiteStarted(&started)
}

func (m *eventMapper) handlePackageEvent(event TestEvent) {
	switch event.Action {
	case ActionOutput:
		m.pkgOutput.WriteString(event.Output)
	case ActionPass, ActionFail, ActionSkip:
		if m.pkgStatus != ActionFail {
			m.pkgStatus = event.Action
		}
		m.elapsed = event.Elapsed
	}
}

func (m *eventMapper) handleSpecEvent(event TestEvent) {
	state := m.specs[event.Test]
	if state == nil {
		state = m.startSpec(event)
	}
	switch event.Action {
	case ActionOutput:
		state.output.WriteString(event.Output)
	case ActionPass, ActionFail, ActionSkip:
		m.finishSpec(state, event.Action, time.Duration(event.Elapsed*float64(time.Second)))
	}
}

func (m *eventMapper) startSpec(event TestEvent) *specState {
	state := &specState{
		result: &types.SpecResult{
			ID:          m.ids.nextSpec(),
			Description: event.Test,
			FullName:    strings.TrimSpace(m.pkgName + " " + event.Test),
			Filename:    m.pkgDir,
		},
		subOut:  make(map[string]*strings.Builder),
		started: event.Time,
	}
	m.specs[event.Test] = state
	m.order = append(m.order, state)
	m.totalSpecs++
	started := *state.result
	m.emit.SpecStarted(&started)
	return state
}

func (m *eventMapper) handleSubtestEvent(event TestEvent, root, sub string) {
	state := m.specs[root]
	if state == nil {
		state = m.startSpec(TestEvent{Test: root, Time: event.Time})
	}
	out := state.subOut[sub]
	if out == nil {
		out = &strings.Builder{}
		state.subOut[sub] = out
	}
	switch event.Action {
	case ActionOutput:
		state.output.WriteString(event.Output)
		out.WriteString(event.Output)
	case ActionPass:
		state.passed = append(state.passed, types.ExpectationResult{
			MatcherName: sub,
			Message:     "Passed.",
			Passed:      true,
		})
	case ActionFail:
		state.failed = append(state.failed, types.ExpectationResult{
			MatcherName: sub,
			Message:     failureMessage(out.String(), event.Test),
		})
	}
}

func (m *eventMapper) finishSpec(state *specState, action string, elapsed time.Duration) {
	if state.done {
		return
	}
	state.done = true
	res := state.result
	res.Duration = elapsed

	switch action {
	case ActionPass:
		res.Status = types.StatusPassed
		res.PassedExpectations = state.passed
	case ActionSkip:
		res.Status = types.StatusPending
		res.PendingReason = cleanOutput(state.output.String())
	default:
		res.Status = types.StatusFailed
		m.failedSpecs++
		res.PassedExpectations = state.passed
		res.FailedExpectations = state.failed
		if len(res.FailedExpectations) == 0 {
			res.FailedExpectations = []types.ExpectationResult{{
				Message: failureMessage(state.output.String(), res.Description),
			}}
		}
	}
	done := *res
	m.emit.SpecDone(&done)
}

// finish closes every open spec and the suite and returns the done event for the
// package. stderr is the tail of the go command's stderr.
func (m *eventMapper) finish(stderr string) *types.RunDoneEvent {
	m.ensureSuite()

	for _, state := range m.order {
		if !state.done {
			state.output.WriteString("test did not complete\n")
			m.finishSpec(state, ActionFail, 0)
		}
	}

	done := &types.RunDoneEvent{
		FailedExpectations:  []types.ExpectationResult{},
		DeprecationWarnings: []types.DeprecationWarning{},
	}

	suite := m.suite
	suite.Duration = time.Duration(m.elapsed * float64(time.Second))
	suite.Status = types.StatusPassed
	if m.pkgStatus == ActionFail || m.failedSpecs > 0 {
		suite.Status = types.StatusFailed
	}
	if m.pkgStatus == ActionFail && m.failedSpecs == 0 {
		msg := cleanOutput(m.pkgOutput.String())
		if s := cleanOutput(stderr); s != "" {
			msg = strings.TrimSpace(msg + "\n" + s)
		}
		if msg == "" {
			msg = fmt.Sprintf("package %s failed", suite.FullName)
		}
		failure := types.ExpectationResult{
			MatcherName: "",
			Message:     msg,
			Filename:    m.pkgDir,
		}
		suite.FailedExpectations = []types.ExpectationResult{failure}
		done.FailedExpectations = append(done.FailedExpectations, failure)
	}
	suiteDone := *suite
	m.emit.SuiteDone(&suiteDone)

	switch {
	case suite.Status == types.StatusFailed:
		done.OverallStatus = types.StatusFailed
	case m.totalSpecs == 0:
		done.OverallStatus = types.StatusIncomplete
		done.IncompleteCode = types.IncompleteNoSpecsFound
		done.IncompleteReason = types.NoSpecsFoundReason
	default:
		done.OverallStatus = types.StatusPassed
	}
	return done
}

// cleanOutput strips ANSI codes and the status lines go test adds around output.
func cleanOutput(output string) string {
	var lines []string
	for _, line := range strings.Split(stripansi.Strip(output), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" ||
			strings.HasPrefix(trimmed, "=== ") ||
			strings.HasPrefix(trimmed, "--- PASS") ||
			strings.HasPrefix(trimmed, "--- FAIL") ||
			strings.HasPrefix(trimmed, "--- SKIP") ||
			trimmed == "PASS" || trimmed == "FAIL" ||
			strings.HasPrefix(trimmed, "ok  \t") {
			continue
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func failureMessage(output, name string) string {
	if msg := cleanOutput(output); msg != "" {
		return msg
	}
	return name + " failed"
}
