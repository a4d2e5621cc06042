package reporting

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
	"github.com/ethereum-optimism/infra/op-specrunner/ui"
)

// maxMessageLines caps how much of a failure message makes it into the table.
const maxMessageLines = 8

type failure struct {
	path    []string
	message string
}

type suiteFailure struct {
	filename string
	message  string
}

// Console prints one character per finished spec while the run is going and a
// table of failures with a summary line when it is done.
type Console struct {
	types.NopReporter

	out   io.Writer
	color bool

	mu       sync.Mutex
	specs    int
	failed   int
	pending  int
	failures []failure
	// suiteFailures lets RunDone skip suite failures it was already told about
	suiteFailures map[suiteFailure]bool
}

var _ types.ParallelReporter = (*Console)(nil)

func NewConsole(out io.Writer, color bool) *Console {
	return &Console{out: out, color: color}
}

func (c *Console) SupportsParallel() bool { return true }

func (c *Console) RunStarted(e *types.RunStartedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specs, c.failed, c.pending = 0, 0, 0
	c.failures = nil
	c.suiteFailures = make(map[suiteFailure]bool)
	fmt.Fprintf(c.out, "Running specs on %d workers\n", e.NumWorkers)
}

func (c *Console) SpecDone(s *types.SpecResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch s.Status {
	case types.StatusPassed:
		c.specs++
		fmt.Fprint(c.out, ".")
	case types.StatusFailed:
		c.specs++
		c.failed++
		fmt.Fprint(c.out, "F")
		for _, e := range s.FailedExpectations {
			c.failures = append(c.failures, failure{
				path:    specPath(s.Filename, s.Description, s.FullName, e.MatcherName),
				message: e.Message,
			})
		}
		if len(s.FailedExpectations) == 0 {
			c.failures = append(c.failures, failure{path: specPath(s.Filename, s.Description, s.FullName, "")})
		}
	case types.StatusPending:
		c.specs++
		c.pending++
		fmt.Fprint(c.out, "*")
	}
}

func (c *Console) SuiteDone(s *types.SuiteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range s.FailedExpectations {
		if c.suiteFailures == nil {
			c.suiteFailures = make(map[suiteFailure]bool)
		}
		c.suiteFailures[suiteFailure{filename: e.Filename, message: e.Message}] = true
		c.failures = append(c.failures, failure{
			path:    specPath(s.Filename, s.Description, s.FullName, ""),
			message: e.Message,
		})
	}
}

func (c *Console) RunDone(e *types.RunDoneEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf bytes.Buffer
	buf.WriteString("\n\n")

	failures := c.failures
	for _, fe := range e.FailedExpectations {
		if c.suiteFailures[suiteFailure{filename: fe.Filename, message: fe.Message}] {
			continue
		}
		location := fe.Filename
		if location == "" {
			location = "top level"
		}
		failures = append(failures, failure{path: []string{location}, message: fe.Message})
	}
	if len(failures) > 0 {
		buf.WriteString(c.failureTable(failures))
		buf.WriteString("\n")
	}

	for _, w := range e.DeprecationWarnings {
		fmt.Fprintf(&buf, "DEPRECATION: %s\n", w.Message)
	}

	summary := fmt.Sprintf("%d %s, %d %s", c.specs, plural(c.specs, "spec"), c.failed, plural(c.failed, "failure"))
	if c.pending > 0 {
		summary += fmt.Sprintf(", %d pending", c.pending)
	}
	fmt.Fprintln(&buf, summary)
	fmt.Fprintf(&buf, "Finished in %s on %d workers\n", formatDuration(e.TotalTime), e.NumWorkers)
	switch e.OverallStatus {
	case types.StatusIncomplete:
		fmt.Fprintf(&buf, "Incomplete: %s\n", e.IncompleteReason)
	case types.StatusFailed:
		fmt.Fprintln(&buf, "Run failed")
	}

	_, _ = c.out.Write(buf.Bytes())
}

func (c *Console) failureTable(failures []failure) string {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("Failures")
	t.AppendHeader(table.Row{"#", "Spec", "Message"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Spec", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Message", WidthMax: 100, WidthMaxEnforcer: text.WrapSoft},
	})
	for i, f := range failures {
		t.AppendRow(table.Row{
			i + 1,
			strings.Join(ui.TreeLines(f.path), "\n"),
			truncateLines(f.message, maxMessageLines),
		})
		t.AppendSeparator()
	}
	if c.color {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	} else {
		t.SetStyle(table.StyleLight)
	}
	t.Render()
	return buf.String()
}

func specPath(filename, description, fullName, expectation string) []string {
	var path []string
	if filename != "" {
		path = append(path, filename)
	}
	name := description
	if name == "" {
		name = fullName
	}
	if name != "" {
		path = append(path, name)
	}
	if expectation != "" && expectation != name {
		path = append(path, expectation)
	}
	return path
}

func truncateLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-n)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
