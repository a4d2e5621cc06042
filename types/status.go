package types

// Status is the outcome of a spec, a suite or a whole run.
type Status string

const (
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
	StatusIncomplete Status = "incomplete"
	StatusPending    Status = "pending"
	StatusExcluded   Status = "excluded"
)

// Incomplete codes carried by RunDoneEvent.IncompleteCode
const (
	IncompleteNoSpecsFound = "noSpecsFound"
	IncompleteFocused      = "focused"
)

// NoSpecsFoundReason is the reason reported alongside IncompleteNoSpecsFound.
const NoSpecsFoundReason = "No specs found"

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusIncomplete, StatusPending, StatusExcluded:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
