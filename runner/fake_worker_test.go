package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-specrunner/pool"
	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// fileScript describes what a fake worker does with one spec file.
type fileScript struct {
	specs              []types.Status
	suiteStatus        types.Status
	incompleteCode     string
	failedExpectations []string
	deprecation        string
	delay              time.Duration
	fatal              string
	exit               bool
}

// script drives every fake worker of a run and records what they saw.
type script struct {
	bootDelay map[int]time.Duration
	bootFatal map[int]string
	// idleDone makes a worker report a finished spec file right after booting
	idleDone map[int]bool
	files    map[string]fileScript

	mu       sync.Mutex
	journal  []string
	runs     map[int][]string
	launched int
}

func newScript() *script {
	return &script{
		bootDelay: map[int]time.Duration{},
		bootFatal: map[int]string{},
		idleDone:  map[int]bool{},
		files:     map[string]fileScript{},
		runs:      map[int][]string{},
	}
}

func (s *script) record(entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, entry)
}

func (s *script) entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.journal...)
}

func (s *script) runsOf(id int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runs[id]...)
}

func (s *script) allRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, files := range s.runs {
		out = append(out, files...)
	}
	return out
}

func (s *script) launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launched
}

func (s *script) launcher() pool.Launcher {
	return &countingLauncher{s: s, inner: &pool.InProcessLauncher{Run: s.run}}
}

type countingLauncher struct {
	s     *script
	inner pool.Launcher
}

func (l *countingLauncher) Launch(ctx context.Context, id int) (pool.Conn, error) {
	l.s.mu.Lock()
	l.s.launched++
	l.s.mu.Unlock()
	return l.inner.Launch(ctx, id)
}

func (s *script) run(ctx context.Context, id int, in io.Reader, out io.Writer) error {
	dec := protocol.NewDecoder(in)
	enc := protocol.NewEncoder(out)
	for {
		m, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch m.Type {
		case protocol.KindConfigure:
			if err := sleep(ctx, s.bootDelay[id]); err != nil {
				return err
			}
			if msg := s.bootFatal[id]; msg != "" {
				_ = enc.Encode(protocol.FatalError(errors.New(msg)))
				continue
			}
			s.record(fmt.Sprintf("booted:%d", id))
			if err := enc.Encode(protocol.Booted()); err != nil {
				return err
			}
			if s.idleDone[id] {
				if err := enc.Encode(protocol.SpecFileDone(&types.RunDoneEvent{OverallStatus: types.StatusPassed})); err != nil {
					return err
				}
			}
		case protocol.KindRunSpecFile:
			s.mu.Lock()
			s.runs[id] = append(s.runs[id], m.FilePath)
			s.mu.Unlock()
			s.record(fmt.Sprintf("run:%d:%s", id, m.FilePath))
			if err := s.runFile(ctx, id, m.FilePath, enc); err != nil {
				return err
			}
		}
	}
}

func (s *script) runFile(ctx context.Context, id int, file string, enc *protocol.Encoder) error {
	fs := s.files[file]
	if err := sleep(ctx, fs.delay); err != nil {
		return err
	}
	if fs.fatal != "" {
		if err := enc.Encode(protocol.FatalError(errors.New(fs.fatal))); err != nil || !fs.exit {
			return err
		}
	}
	if fs.exit {
		return fmt.Errorf("worker %d crashed on %s", id, file)
	}

	suite := &types.SuiteResult{ID: fmt.Sprintf("%d-suite0", id), FullName: file, Filename: file}
	if err := send(enc, protocol.EventSuiteStarted, suite); err != nil {
		return err
	}
	for i, status := range fs.specs {
		spec := &types.SpecResult{ID: fmt.Sprintf("%d-spec%d", id, i), FullName: fmt.Sprintf("%s spec %d", file, i)}
		if err := send(enc, protocol.EventSpecStarted, spec); err != nil {
			return err
		}
		done := *spec
		done.Status = status
		if err := send(enc, protocol.EventSpecDone, &done); err != nil {
			return err
		}
	}
	suiteDone := *suite
	suiteDone.Status = fs.suiteStatus
	if suiteDone.Status == "" {
		suiteDone.Status = types.StatusPassed
	}
	if err := send(enc, protocol.EventSuiteDone, &suiteDone); err != nil {
		return err
	}

	result := &types.RunDoneEvent{OverallStatus: types.StatusPassed}
	for _, msg := range fs.failedExpectations {
		result.FailedExpectations = append(result.FailedExpectations, types.ExpectationResult{Message: msg})
		result.OverallStatus = types.StatusFailed
	}
	for _, status := range fs.specs {
		if status == types.StatusFailed {
			result.OverallStatus = types.StatusFailed
		}
	}
	if fs.deprecation != "" {
		result.DeprecationWarnings = []types.DeprecationWarning{{Message: fs.deprecation}}
	}
	switch {
	case fs.incompleteCode != "":
		result.IncompleteCode = fs.incompleteCode
		result.IncompleteReason = "reason for " + fs.incompleteCode
		if result.OverallStatus == types.StatusPassed {
			result.OverallStatus = types.StatusIncomplete
		}
	case len(fs.specs) == 0:
		result.IncompleteCode = types.IncompleteNoSpecsFound
		result.IncompleteReason = types.NoSpecsFoundReason
		result.OverallStatus = types.StatusIncomplete
	}
	return enc.Encode(protocol.SpecFileDone(result))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func send(enc *protocol.Encoder, name protocol.EventName, payload any) error {
	m, err := protocol.ReporterEvent(name, payload)
	if err != nil {
		return err
	}
	return enc.Encode(m)
}

// recordingReporter remembers every event it receives.
type recordingReporter struct {
	parallel bool

	mu      sync.Mutex
	events  []string
	started *types.RunStartedEvent
	done    *types.RunDoneEvent
	specs   []*types.SpecResult
}

func (r *recordingReporter) SupportsParallel() bool { return r.parallel }

func (r *recordingReporter) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingReporter) RunStarted(e *types.RunStartedEvent) { r.started = e; r.add("runStarted") }
func (r *recordingReporter) SuiteStarted(*types.SuiteResult)     { r.add("suiteStarted") }
func (r *recordingReporter) SpecStarted(*types.SpecResult)       { r.add("specStarted") }
func (r *recordingReporter) SpecDone(s *types.SpecResult) {
	r.mu.Lock()
	r.specs = append(r.specs, s)
	r.mu.Unlock()
	r.add("specDone")
}
func (r *recordingReporter) SuiteDone(*types.SuiteResult)  { r.add("suiteDone") }
func (r *recordingReporter) RunDone(e *types.RunDoneEvent) { r.done = e; r.add("runDone") }

func (r *recordingReporter) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == name {
			n++
		}
	}
	return n
}

// serialReporter does not declare parallel support.
type serialReporter struct {
	types.NopReporter
}

// capturingHandler collects log records.
type capturingHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capturingHandler) WithGroup(string) slog.Handler      { return h }

func (h *capturingHandler) count(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func discardLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}
