// Package pool starts worker processes and multiplexes their messages.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-specrunner/protocol"
)

// DefaultDisconnectTimeout is how long a disconnected worker may take to exit
// before it is killed.
const DefaultDisconnectTimeout = 30 * time.Second

// Conn is a duplex channel to one worker.
type Conn interface {
	Send(m protocol.Message) error
	// Recv returns io.EOF once the worker closed its side.
	Recv() (protocol.Message, error)
	// CloseSend tells the worker no more commands will come.
	CloseSend() error
	// Wait blocks until the worker is gone and returns how it ended.
	Wait() error
	Kill() error
	Pid() int
}

// Launcher starts workers.
type Launcher interface {
	Launch(ctx context.Context, id int) (Conn, error)
}

type EventKind int

const (
	EventMessage EventKind = iota
	// EventError is a broken channel; an EventExit for the same worker follows.
	EventError
	EventExit
)

// Event is something that happened to one worker. Events of one worker arrive in order.
type Event struct {
	Worker  int
	Kind    EventKind
	Message protocol.Message
	Err     error
}

type handle struct {
	id     int
	conn   Conn
	exited chan struct{}
}

type Pool struct {
	log      log.Logger
	launcher Launcher

	DisconnectTimeout time.Duration

	mu       sync.Mutex
	workers  map[int]*handle
	ordered  []*handle
	events   chan Event
	stopped  chan struct{}
	stopOnce sync.Once
	pumps    conc.WaitGroup
}

func New(launcher Launcher, logger log.Logger) *Pool {
	return &Pool{
		log:               logger.New("component", "pool"),
		launcher:          launcher,
		DisconnectTimeout: DefaultDisconnectTimeout,
		workers:           make(map[int]*handle),
		events:            make(chan Event),
		stopped:           make(chan struct{}),
	}
}

// Events delivers the messages and exits of every worker.
func (p *Pool) Events() <-chan Event {
	return p.events
}

// Spawn launches n workers with ids 1..n. If one fails to launch the workers
// started so far are killed.
func (p *Pool) Spawn(ctx context.Context, n int) ([]int, error) {
	ids := make([]int, 0, n)
	for id := 1; id <= n; id++ {
		conn, err := p.launcher.Launch(ctx, id)
		if err != nil {
			p.kill()
			return nil, fmt.Errorf("failed to launch worker %d: %w", id, err)
		}
		h := &handle{id: id, conn: conn, exited: make(chan struct{})}
		p.mu.Lock()
		p.workers[id] = h
		p.ordered = append(p.ordered, h)
		p.mu.Unlock()
		p.pumps.Go(func() { p.pump(h) })
		p.log.Debug("Spawned worker", "worker_id", id, "pid", conn.Pid())
		ids = append(ids, id)
	}
	return ids, nil
}

// Send delivers a command to one worker.
func (p *Pool) Send(id int, m protocol.Message) error {
	p.mu.Lock()
	h, ok := p.workers[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown worker %d", id)
	}
	return h.conn.Send(m)
}

func (p *Pool) pump(h *handle) {
	defer close(h.exited)
	delivering := true
	for {
		m, err := h.conn.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && delivering {
				p.emit(Event{Worker: h.id, Kind: EventError, Err: err})
				if kerr := h.conn.Kill(); kerr != nil {
					p.log.Debug("Failed to kill worker", "worker_id", h.id, "err", kerr)
				}
			}
			break
		}
		// once the pool is stopping keep reading so the worker never blocks on a full pipe
		if delivering {
			delivering = p.emit(Event{Worker: h.id, Kind: EventMessage, Message: m})
		}
	}
	err := h.conn.Wait()
	p.log.Debug("Worker exited", "worker_id", h.id, "err", err)
	p.emit(Event{Worker: h.id, Kind: EventExit, Err: err})
}

// emit delivers ev unless the pool is being torn down.
func (p *Pool) emit(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.stopped:
		return false
	}
}

// Disconnect closes every worker's command channel and waits for the workers to
// exit, killing those that take longer than DisconnectTimeout. Events emitted after
// Disconnect starts are dropped.
func (p *Pool) Disconnect(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopped) })

	p.mu.Lock()
	workers := append([]*handle(nil), p.ordered...)
	p.mu.Unlock()

	var g errgroup.Group
	for _, h := range workers {
		g.Go(func() error {
			return p.disconnect(ctx, h)
		})
	}
	err := g.Wait()
	p.pumps.Wait()
	return err
}

func (p *Pool) disconnect(ctx context.Context, h *handle) error {
	if err := h.conn.CloseSend(); err != nil {
		p.log.Debug("Failed to close worker input", "worker_id", h.id, "err", err)
	}
	timer := time.NewTimer(p.DisconnectTimeout)
	defer timer.Stop()
	select {
	case <-h.exited:
		return nil
	case <-timer.C:
		p.log.Warn("Worker did not exit after disconnect, killing it", "worker_id", h.id, "timeout", p.DisconnectTimeout)
	case <-ctx.Done():
	}
	if err := h.conn.Kill(); err != nil {
		return fmt.Errorf("failed to kill worker %d: %w", h.id, err)
	}
	<-h.exited
	return nil
}

func (p *Pool) kill() {
	p.stopOnce.Do(func() { close(p.stopped) })
	p.mu.Lock()
	workers := append([]*handle(nil), p.ordered...)
	p.mu.Unlock()
	for _, h := range workers {
		_ = h.conn.Kill()
	}
	p.pumps.Wait()
}
