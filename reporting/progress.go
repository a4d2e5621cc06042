package reporting

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-specrunner/types"
)

// DefaultProgressInterval is used when a Progress reporter is created without one.
const DefaultProgressInterval = 30 * time.Second

// Progress logs how far along a run is, at most once per interval.
type Progress struct {
	types.NopReporter

	logger    log.Logger
	sometimes rate.Sometimes

	mu        sync.Mutex
	start     time.Time
	workers   int
	running   map[string]time.Time
	completed int
	failed    int
	files     int
}

var _ types.ParallelReporter = (*Progress)(nil)

func NewProgress(logger log.Logger, interval time.Duration) *Progress {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Progress{
		logger:    logger.New("component", "progress"),
		sometimes: rate.Sometimes{Interval: interval},
		running:   make(map[string]time.Time),
	}
}

func (p *Progress) SupportsParallel() bool { return true }

func (p *Progress) RunStarted(e *types.RunStartedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.workers = e.NumWorkers
	p.logger.Info("Run started", "workers", e.NumWorkers)
}

func (p *Progress) SpecStarted(s *types.SpecResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[s.ID] = time.Now()
}

func (p *Progress) SpecDone(s *types.SpecResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, s.ID)
	p.completed++
	if s.Status == types.StatusFailed {
		p.failed++
	}
	p.logger.Debug("Spec completed", "spec", s.FullName, "status", s.Status, "completed", p.completed)
	p.sometimes.Do(p.report)
}

func (p *Progress) SuiteDone(s *types.SuiteResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files++
	p.sometimes.Do(p.report)
}

func (p *Progress) RunDone(e *types.RunDoneEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Info("Run completed", "status", e.OverallStatus, "specs", p.completed,
		"failed", p.failed, "files", p.files, "duration", e.TotalTime.Truncate(time.Millisecond))
}

// report must be called with mu held.
func (p *Progress) report() {
	longest, longestFor := "", time.Duration(0)
	for id, started := range p.running {
		if d := time.Since(started); d > longestFor {
			longest, longestFor = id, d
		}
	}
	p.logger.Info("Progress update",
		"completed", p.completed,
		"failed", p.failed,
		"files", p.files,
		"running", len(p.running),
		"longestRunning", longest,
		"longestRunningFor", longestFor.Truncate(time.Second),
		"elapsed", time.Since(p.start).Truncate(time.Second),
	)
}
