// Package exitcodes defines the standard exit codes used by op-specrunner.
package exitcodes

import "github.com/ethereum-optimism/infra/op-specrunner/types"

// Exit code constants used by op-specrunner
// These constants define the exit codes that the application uses to indicate
// how a run ended:
//
// * Success (0): Used when the run passed
// * RuntimeErr (1): Used for fatal errors and any status that is not recognized
// * Incomplete (2): Used when the run was incomplete, e.g. no specs were found
// * TestFailure (3): Used when one or more specs failed
const (
	Success     = 0 // Run passed
	RuntimeErr  = 1 // Fatal errors, unknown statuses
	Incomplete  = 2 // Run incomplete
	TestFailure = 3 // Spec failures
)

// ForStatus maps a run's overall status to an exit code.
func ForStatus(status types.Status) int {
	switch status {
	case types.StatusPassed:
		return Success
	case types.StatusIncomplete:
		return Incomplete
	case types.StatusFailed:
		return TestFailure
	}
	return RuntimeErr
}

// ForResult maps the outcome of a run to an exit code. Any error wins.
func ForResult(done *types.RunDoneEvent, err error) int {
	if err != nil || done == nil {
		return RuntimeErr
	}
	return ForStatus(done.OverallStatus)
}
