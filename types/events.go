package types

import "time"

// ExpectationResult describes a single failed (or passed) expectation.
type ExpectationResult struct {
	MatcherName string `json:"matcherName,omitempty"`
	Message     string `json:"message"`
	Stack       string `json:"stack,omitempty"`
	Passed      bool   `json:"passed"`
	// Filename is set for expectations raised outside of any spec, e.g. a package
	// that failed to build.
	Filename string `json:"filename,omitempty"`
}

// DeprecationWarning is a non-fatal notice emitted by a test engine.
type DeprecationWarning struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// SuiteResult is the payload of suiteStarted and suiteDone events.
type SuiteResult struct {
	ID                  string               `json:"id"`
	Description         string               `json:"description"`
	FullName            string               `json:"fullName"`
	Filename            string               `json:"filename,omitempty"`
	Status              Status               `json:"status,omitempty"`
	FailedExpectations  []ExpectationResult  `json:"failedExpectations,omitempty"`
	DeprecationWarnings []DeprecationWarning `json:"deprecationWarnings,omitempty"`
	Duration            time.Duration        `json:"duration,omitempty"`
}

// SpecResult is the payload of specStarted and specDone events.
type SpecResult struct {
	ID                  string               `json:"id"`
	Description         string               `json:"description"`
	FullName            string               `json:"fullName"`
	Filename            string               `json:"filename,omitempty"`
	Status              Status               `json:"status,omitempty"`
	FailedExpectations  []ExpectationResult  `json:"failedExpectations,omitempty"`
	PassedExpectations  []ExpectationResult  `json:"passedExpectations,omitempty"`
	DeprecationWarnings []DeprecationWarning `json:"deprecationWarnings,omitempty"`
	PendingReason       string               `json:"pendingReason,omitempty"`
	Duration            time.Duration        `json:"duration,omitempty"`
}

// Order describes how specs were ordered for a run.
type Order struct {
	Random bool   `json:"random"`
	Seed   string `json:"seed,omitempty"`
}

// RunStartedEvent opens a run. When specs are spread over several workers neither
// the total spec count nor the order is known up front and both are left empty.
type RunStartedEvent struct {
	TotalSpecsDefined int    `json:"totalSpecsDefined,omitempty"`
	Order             *Order `json:"order,omitempty"`
	Parallel          bool   `json:"parallel"`
	NumWorkers        int    `json:"numWorkers,omitempty"`
}

// RunDoneEvent is the final result of a run (or of one spec file inside a worker).
type RunDoneEvent struct {
	OverallStatus       Status               `json:"overallStatus"`
	TotalTime           time.Duration        `json:"totalTime"`
	NumWorkers          int                  `json:"numWorkers,omitempty"`
	FailedExpectations  []ExpectationResult  `json:"failedExpectations"`
	DeprecationWarnings []DeprecationWarning `json:"deprecationWarnings"`
	IncompleteCode      string               `json:"incompleteCode,omitempty"`
	IncompleteReason    string               `json:"incompleteReason,omitempty"`
	Order               *Order               `json:"order,omitempty"`
}
