package runner

import (
	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// fileQueue hands out spec files in order. The cursor only moves forward.
type fileQueue struct {
	files  []string
	cursor int
}

func newFileQueue(files []string) *fileQueue {
	return &fileQueue{files: files}
}

func (q *fileQueue) next() (string, bool) {
	if q.cursor >= len(q.files) {
		return "", false
	}
	f := q.files[q.cursor]
	q.cursor++
	return f, true
}

func (q *fileQueue) empty() bool {
	return q.cursor >= len(q.files)
}

func (q *fileQueue) remaining() int {
	return len(q.files) - q.cursor
}

// workerHandle is the coordinator's view of one worker:
// spawned -> booted -> (idle <-> running)* -> done
type workerHandle struct {
	id      int
	booted  bool
	done    bool
	exited  bool
	running string
	// dispatched counts the files sent to this worker
	dispatched int
	completed  []string
}

func (w *workerHandle) idle() bool {
	return w.running == ""
}

// executionState aggregates the results of every spec file.
type executionState struct {
	hasFailures         bool
	hasSpecs            bool
	failedExpectations  []types.ExpectationResult
	deprecationWarnings []types.DeprecationWarning
	incompleteCode      string
	incompleteReason    string
}

func newExecutionState() *executionState {
	return &executionState{
		failedExpectations:  []types.ExpectationResult{},
		deprecationWarnings: []types.DeprecationWarning{},
	}
}

func (s *executionState) failed() bool {
	return s.hasFailures || len(s.failedExpectations) > 0
}

func (s *executionState) mergeSpecFileDone(m protocol.Message) {
	s.failedExpectations = append(s.failedExpectations, m.FailedExpectations...)
	s.deprecationWarnings = append(s.deprecationWarnings, m.DeprecationWarnings...)

	if m.IncompleteCode != types.IncompleteNoSpecsFound {
		s.hasSpecs = true
	}
	if m.IncompleteCode != "" && m.IncompleteCode != types.IncompleteNoSpecsFound && s.incompleteCode == "" {
		s.incompleteCode = m.IncompleteCode
		s.incompleteReason = m.IncompleteReason
	}
	if m.OverallStatus == types.StatusFailed {
		s.hasFailures = true
	}
}

// overallStatus applies failed > incomplete > passed.
func (s *executionState) overallStatus() (status types.Status, code, reason string) {
	switch {
	case s.failed():
		return types.StatusFailed, "", ""
	case s.incompleteCode != "":
		return types.StatusIncomplete, s.incompleteCode, s.incompleteReason
	case !s.hasSpecs:
		return types.StatusIncomplete, types.IncompleteNoSpecsFound, types.NoSpecsFoundReason
	}
	return types.StatusPassed, "", ""
}
