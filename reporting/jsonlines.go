package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// Event is one line of a JSONLines file.
type Event struct {
	Event   string          `json:"event"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// JSONLines writes every lifecycle event as one JSON object per line.
type JSONLines struct {
	logger log.Logger

	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
	err error
}

var _ types.ParallelReporter = (*JSONLines)(nil)

func NewJSONLines(w io.Writer, logger log.Logger) *JSONLines {
	return &JSONLines{logger: logger, w: w, enc: json.NewEncoder(w)}
}

// CreateJSONLines creates (or truncates) path and writes events to it.
func CreateJSONLines(path string, logger log.Logger) (*JSONLines, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create events file: %w", err)
	}
	return NewJSONLines(f, logger.New("events_file", path)), nil
}

func (j *JSONLines) SupportsParallel() bool { return true }

func (j *JSONLines) RunStarted(e *types.RunStartedEvent) { j.write("runStarted", e) }
func (j *JSONLines) SuiteStarted(s *types.SuiteResult)   { j.write("suiteStarted", s) }
func (j *JSONLines) SpecStarted(s *types.SpecResult)     { j.write("specStarted", s) }
func (j *JSONLines) SpecDone(s *types.SpecResult)        { j.write("specDone", s) }
func (j *JSONLines) SuiteDone(s *types.SuiteResult)      { j.write("suiteDone", s) }
func (j *JSONLines) RunDone(e *types.RunDoneEvent)       { j.write("runDone", e) }

// Err returns the first write error, after which events are dropped.
func (j *JSONLines) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *JSONLines) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if c, ok := j.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (j *JSONLines) write(name string, payload any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err == nil {
		err = j.enc.Encode(Event{Event: name, Time: time.Now().UTC(), Payload: raw})
	}
	if err != nil {
		j.err = err
		j.logger.Error("Failed to write event, dropping the rest", "event", name, "err", err)
	}
}
