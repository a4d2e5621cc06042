package gotest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

type recorded struct {
	name    string
	suite   *types.SuiteResult
	spec    *types.SpecResult
	runDone *types.RunDoneEvent
}

type recordingReporter struct {
	events []recorded
}

func (r *recordingReporter) RunStarted(*types.RunStartedEvent) {
	r.events = append(r.events, recorded{name: "runStarted"})
}
func (r *recordingReporter) SuiteStarted(s *types.SuiteResult) {
	r.events = append(r.events, recorded{name: "suiteStarted", suite: s})
}
func (r *recordingReporter) SpecStarted(s *types.SpecResult) {
	r.events = append(r.events, recorded{name: "specStarted", spec: s})
}
func (r *recordingReporter) SpecDone(s *types.SpecResult) {
	r.events = append(r.events, recorded{name: "specDone", spec: s})
}
func (r *recordingReporter) SuiteDone(s *types.SuiteResult) {
	r.events = append(r.events, recorded{name: "suiteDone", suite: s})
}
func (r *recordingReporter) RunDone(e *types.RunDoneEvent) {
	r.events = append(r.events, recorded{name: "runDone", runDone: e})
}

func (r *recordingReporter) names() []string {
	var out []string
	for _, e := range r.events {
		out = append(out, e.name)
	}
	return out
}

func (r *recordingReporter) specDone(desc string) *types.SpecResult {
	for _, e := range r.events {
		if e.name == "specDone" && e.spec.Description == desc {
			return e.spec
		}
	}
	return nil
}

func (r *recordingReporter) suiteDone() *types.SuiteResult {
	for _, e := range r.events {
		if e.name == "suiteDone" {
			return e.suite
		}
	}
	return nil
}

func mapLines(t *testing.T, lines string) (*recordingReporter, *types.RunDoneEvent) {
	t.Helper()
	rep := &recordingReporter{}
	f := &fanout{}
	f.add(rep)
	m := newEventMapper(f, &ids{}, "/specs/pkg")
	for _, line := range strings.Split(strings.TrimSpace(lines), "\n") {
		event, err := parseTestEvent([]byte(line))
		if err != nil {
			m.rawOutput(line)
			continue
		}
		m.handle(event)
	}
	return rep, m.finish("")
}

func TestMapperPassingPackage(t *testing.T) {
	rep, done := mapLines(t, `
{"Action":"start","Package":"example.com/pkg"}
{"Action":"run","Package":"example.com/pkg","Test":"TestA"}
{"Action":"output","Package":"example.com/pkg","Test":"TestA","Output":"=== RUN   TestA\n"}
{"Action":"output","Package":"example.com/pkg","Test":"TestA","Output":"--- PASS: TestA (0.00s)\n"}
{"Action":"pass","Package":"example.com/pkg","Test":"TestA","Elapsed":0.5}
{"Action":"run","Package":"example.com/pkg","Test":"TestB"}
{"Action":"output","Package":"example.com/pkg","Test":"TestB","Output":"    b_test.go:9: not today\n"}
{"Action":"skip","Package":"example.com/pkg","Test":"TestB"}
{"Action":"pass","Package":"example.com/pkg","Elapsed":1.25}
`)
	assert.Equal(t, []string{"suiteStarted", "specStarted", "specDone", "specStarted", "specDone", "suiteDone"}, rep.names())

	a := rep.specDone("TestA")
	require.NotNil(t, a)
	assert.Equal(t, types.StatusPassed, a.Status)
	assert.Equal(t, "spec0", a.ID)
	assert.Equal(t, "example.com/pkg TestA", a.FullName)
	assert.Equal(t, 500*time.Millisecond, a.Duration)

	b := rep.specDone("TestB")
	require.NotNil(t, b)
	assert.Equal(t, types.StatusPending, b.Status)
	assert.Equal(t, "b_test.go:9: not today", b.PendingReason)

	suite := rep.suiteDone()
	assert.Equal(t, "suite0", suite.ID)
	assert.Equal(t, types.StatusPassed, suite.Status)
	assert.Equal(t, 1250*time.Millisecond, suite.Duration)

	assert.Equal(t, types.StatusPassed, done.OverallStatus)
	assert.Empty(t, done.FailedExpectations)
	assert.NotNil(t, done.FailedExpectations)
}

func TestMapperFailingSubtests(t *testing.T) {
	rep, done := mapLines(t, `
{"Action":"run","Package":"example.com/pkg","Test":"TestTable"}
{"Action":"run","Package":"example.com/pkg","Test":"TestTable/ok"}
{"Action":"pass","Package":"example.com/pkg","Test":"TestTable/ok"}
{"Action":"run","Package":"example.com/pkg","Test":"TestTable/bad"}
{"Action":"output","Package":"example.com/pkg","Test":"TestTable/bad","Output":"    t_test.go:12: \u001b[31mexpected 1, got 2\u001b[0m\n"}
{"Action":"output","Package":"example.com/pkg","Test":"TestTable/bad","Output":"    --- FAIL: TestTable/bad (0.00s)\n"}
{"Action":"fail","Package":"example.com/pkg","Test":"TestTable/bad"}
{"Action":"fail","Package":"example.com/pkg","Test":"TestTable"}
{"Action":"fail","Package":"example.com/pkg"}
`)
	spec := rep.specDone("TestTable")
	require.NotNil(t, spec)
	assert.Equal(t, types.StatusFailed, spec.Status)
	require.Len(t, spec.FailedExpectations, 1)
	assert.Equal(t, "bad", spec.FailedExpectations[0].MatcherName)
	assert.Equal(t, "t_test.go:12: expected 1, got 2", strings.TrimSpace(spec.FailedExpectations[0].Message))
	require.Len(t, spec.PassedExpectations, 1)
	assert.Equal(t, "ok", spec.PassedExpectations[0].MatcherName)

	assert.Equal(t, types.StatusFailed, rep.suiteDone().Status)
	assert.Empty(t, rep.suiteDone().FailedExpectations, "failure belongs to the spec")
	assert.Equal(t, types.StatusFailed, done.OverallStatus)
	assert.Empty(t, done.FailedExpectations)
}

func TestMapperFailureWithoutSubtests(t *testing.T) {
	rep, _ := mapLines(t, `
{"Action":"run","Package":"example.com/pkg","Test":"TestPanics"}
{"Action":"output","Package":"example.com/pkg","Test":"TestPanics","Output":"panic: boom\n"}
{"Action":"fail","Package":"example.com/pkg","Test":"TestPanics"}
{"Action":"fail","Package":"example.com/pkg"}
`)
	spec := rep.specDone("TestPanics")
	require.Len(t, spec.FailedExpectations, 1)
	assert.Equal(t, "panic: boom", spec.FailedExpectations[0].Message)
}

func TestMapperBuildFailure(t *testing.T) {
	rep, done := mapLines(t, `
{"ImportPath":"example.com/pkg [example.com/pkg.test]","Action":"build-output","Output":"# example.com/pkg\n"}
{"ImportPath":"example.com/pkg [example.com/pkg.test]","Action":"build-output","Output":"./a_test.go:5:2: undefined: nope\n"}
{"ImportPath":"example.com/pkg [example.com/pkg.test]","Action":"build-fail"}
{"Action":"start","Package":"example.com/pkg"}
{"Action":"output","Package":"example.com/pkg","Output":"FAIL\texample.com/pkg [build failed]\n"}
{"Action":"fail","Package":"example.com/pkg","Elapsed":0}
`)
	assert.Equal(t, []string{"suiteStarted", "suiteDone"}, rep.names())
	suite := rep.suiteDone()
	assert.Equal(t, types.StatusFailed, suite.Status)
	require.Len(t, suite.FailedExpectations, 1)
	assert.Contains(t, suite.FailedExpectations[0].Message, "undefined: nope")

	assert.Equal(t, types.StatusFailed, done.OverallStatus)
	require.Len(t, done.FailedExpectations, 1)
	assert.Equal(t, "/specs/pkg", done.FailedExpectations[0].Filename)
}

func TestMapperNoSpecs(t *testing.T) {
	rep, done := mapLines(t, `
{"Action":"start","Package":"example.com/pkg"}
{"Action":"output","Package":"example.com/pkg","Output":"?   \texample.com/pkg\t[no test files]\n"}
{"Action":"skip","Package":"example.com/pkg","Elapsed":0}
`)
	assert.Equal(t, []string{"suiteStarted", "suiteDone"}, rep.names())
	assert.Equal(t, types.StatusIncomplete, done.OverallStatus)
	assert.Equal(t, types.IncompleteNoSpecsFound, done.IncompleteCode)
	assert.Equal(t, types.NoSpecsFoundReason, done.IncompleteReason)
}

func TestMapperUnfinishedSpec(t *testing.T) {
	rep, done := mapLines(t, `
{"Action":"run","Package":"example.com/pkg","Test":"TestHangs"}
not json at all
`)
	spec := rep.specDone("TestHangs")
	require.NotNil(t, spec)
	assert.Equal(t, types.StatusFailed, spec.Status)
	assert.Contains(t, spec.FailedExpectations[0].Message, "test did not complete")
	assert.Equal(t, types.StatusFailed, done.OverallStatus)
}

func TestIDsAreUniqueAcrossPackages(t *testing.T) {
	rep := &recordingReporter{}
	f := &fanout{}
	f.add(rep)
	shared := &ids{}
	for _, dir := range []string{"/a", "/b"} {
		m := newEventMapper(f, shared, dir)
		m.handle(TestEvent{Action: ActionRun, Package: "p" + dir, Test: "TestX"})
		m.handle(TestEvent{Action: ActionPass, Package: "p" + dir, Test: "TestX"})
		m.finish("")
	}
	var specIDs, suiteIDs []string
	for _, e := range rep.events {
		switch e.name {
		case "specDone":
			specIDs = append(specIDs, e.spec.ID)
		case "suiteDone":
			suiteIDs = append(suiteIDs, e.suite.ID)
		}
	}
	assert.Equal(t, []string{"spec0", "spec1"}, specIDs)
	assert.Equal(t, []string{"suite0", "suite1"}, suiteIDs)
}
