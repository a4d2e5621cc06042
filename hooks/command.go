package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Command returns a hook that runs a shell command line with `sh -c`.
// Output is logged line by line.
func Command(name, commandLine string, logger log.Logger) Hook {
	if strings.TrimSpace(commandLine) == "" {
		return nil
	}
	return func(ctx context.Context) error {
		l := logger.New("hook", name)
		l.Info("Running hook", "command", commandLine)

		out := &lineLogger{log: l}
		cmd := exec.CommandContext(ctx, "sh", "-c", commandLine)
		cmd.Env = os.Environ()
		cmd.Stdout = out
		cmd.Stderr = out
		err := cmd.Run()
		out.Flush()
		if err != nil {
			return fmt.Errorf("%s command %q failed: %w", name, commandLine, err)
		}
		return nil
	}
}

// lineLogger logs each complete line written to it.
type lineLogger struct {
	log log.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(w.buf.Next(i + 1))
		w.log.Info(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineLogger) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.log.Info(w.buf.String())
		w.buf.Reset()
	}
}
