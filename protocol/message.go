package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// Kind identifies a message exchanged between the coordinator and a worker.
type Kind string

const (
	// primary -> worker
	KindConfigure   Kind = "configure"
	KindRunSpecFile Kind = "runSpecFile"

	// worker -> primary
	KindBooted        Kind = "booted"
	KindFatalError    Kind = "fatalError"
	KindSpecFileDone  Kind = "specFileDone"
	KindReporterEvent Kind = "reporterEvent"
)

// EventName names a forwarded reporter event.
type EventName string

const (
	EventSuiteStarted EventName = "suiteStarted"
	EventSuiteDone    EventName = "suiteDone"
	EventSpecStarted  EventName = "specStarted"
	EventSpecDone     EventName = "specDone"
)

// Loader modes understood by engines.
const (
	LoaderParse = "parse"
	LoaderVet   = "vet"
)

// Configuration is sent once to every worker before it boots.
type Configuration struct {
	SpecDir    string          `json:"specDir"`
	Helpers    []string        `json:"helpers,omitempty"`
	Requires   []string        `json:"requires,omitempty"`
	Filter     string          `json:"filter,omitempty"`
	Env        types.EnvConfig `json:"env"`
	Loader     string          `json:"loader,omitempty"`
	Engine     string          `json:"engine,omitempty"`
	EnginePath string          `json:"enginePath,omitempty"`
}

// Error is an error that crossed the process boundary.
type Error struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// stackTracer is implemented by errors that carry their own stack.
type stackTracer interface {
	Stack() string
}

// NewError captures err for sending to the coordinator.
func NewError(err error) *Error {
	if err == nil {
		return nil
	}
	var remote *Error
	if errors.As(err, &remote) && remote.Error() == err.Error() {
		return remote
	}
	e := &Error{Message: err.Error()}
	var st stackTracer
	if errors.As(err, &st) {
		e.Stack = st.Stack()
	} else {
		e.Stack = fmt.Sprintf("%T: %s", err, err.Error())
	}
	return e
}

// Message is one line of the worker protocol. Only the fields belonging to Type are set.
type Message struct {
	Type Kind `json:"type"`

	Configuration *Configuration `json:"configuration,omitempty"`
	Error         *Error         `json:"error,omitempty"`
	FilePath      string         `json:"filePath,omitempty"`

	// specFileDone
	OverallStatus       types.Status               `json:"overallStatus,omitempty"`
	IncompleteCode      string                     `json:"incompleteCode,omitempty"`
	IncompleteReason    string                     `json:"incompleteReason,omitempty"`
	FailedExpectations  []types.ExpectationResult  `json:"failedExpectations"`
	DeprecationWarnings []types.DeprecationWarning `json:"deprecationWarnings"`

	// reporterEvent
	EventName EventName       `json:"eventName,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func Configure(cfg Configuration) Message {
	return Message{Type: KindConfigure, Configuration: &cfg}
}

func Booted() Message {
	return Message{Type: KindBooted}
}

func FatalError(err error) Message {
	return Message{Type: KindFatalError, Error: NewError(err)}
}

func RunSpecFile(path string) Message {
	return Message{Type: KindRunSpecFile, FilePath: path}
}

// SpecFileDone reports the outcome of one spec file from the engine's done event.
// Both lists are always encoded as arrays, empty ones included.
func SpecFileDone(done *types.RunDoneEvent) Message {
	failed := done.FailedExpectations
	if failed == nil {
		failed = []types.ExpectationResult{}
	}
	warnings := done.DeprecationWarnings
	if warnings == nil {
		warnings = []types.DeprecationWarning{}
	}
	return Message{
		Type:                KindSpecFileDone,
		OverallStatus:       done.OverallStatus,
		IncompleteCode:      done.IncompleteCode,
		IncompleteReason:    done.IncompleteReason,
		FailedExpectations:  failed,
		DeprecationWarnings: warnings,
	}
}

// ReporterEvent wraps a suite or spec result. payload must be a *types.SuiteResult
// for suite events and a *types.SpecResult for spec events.
func ReporterEvent(name EventName, payload any) (Message, error) {
	switch name {
	case EventSuiteStarted, EventSuiteDone:
		if _, ok := payload.(*types.SuiteResult); !ok {
			return Message{}, fmt.Errorf("%s payload must be a suite result, got %T", name, payload)
		}
	case EventSpecStarted, EventSpecDone:
		if _, ok := payload.(*types.SpecResult); !ok {
			return Message{}, fmt.Errorf("%s payload must be a spec result, got %T", name, payload)
		}
	default:
		return Message{}, fmt.Errorf("unknown reporter event %q", name)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return Message{Type: KindReporterEvent, EventName: name, Payload: raw}, nil
}

// Suite decodes the payload of a suiteStarted/suiteDone event.
func (m Message) Suite() (*types.SuiteResult, error) {
	if m.EventName != EventSuiteStarted && m.EventName != EventSuiteDone {
		return nil, fmt.Errorf("%s event does not carry a suite", m.EventName)
	}
	var s types.SuiteResult
	if err := json.Unmarshal(m.Payload, &s); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", m.EventName, err)
	}
	return &s, nil
}

// Spec decodes the payload of a specStarted/specDone event.
func (m Message) Spec() (*types.SpecResult, error) {
	if m.EventName != EventSpecStarted && m.EventName != EventSpecDone {
		return nil, fmt.Errorf("%s event does not carry a spec", m.EventName)
	}
	var s types.SpecResult
	if err := json.Unmarshal(m.Payload, &s); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", m.EventName, err)
	}
	return &s, nil
}

// Validate checks that the fields required by the message kind are present.
func (m Message) Validate() error {
	switch m.Type {
	case KindConfigure:
		if m.Configuration == nil {
			return errors.New("configure message without configuration")
		}
	case KindBooted:
	case KindFatalError:
		if m.Error == nil {
			return errors.New("fatalError message without error")
		}
	case KindRunSpecFile:
		if m.FilePath == "" {
			return errors.New("runSpecFile message without file path")
		}
	case KindSpecFileDone:
		if !m.OverallStatus.IsValid() {
			return fmt.Errorf("specFileDone message with invalid status %q", m.OverallStatus)
		}
	case KindReporterEvent:
		switch m.EventName {
		case EventSuiteStarted, EventSuiteDone, EventSpecStarted, EventSpecDone:
		default:
			return fmt.Errorf("unknown reporter event %q", m.EventName)
		}
		if len(m.Payload) == 0 {
			return fmt.Errorf("%s event without payload", m.EventName)
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}
