// Package scheduler implements the single-writer turn queue: at most one
// turn is mid-flight at any time, with auto-tick fires coalesced against an
// already-queued-or-in-flight auto-tick turn.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Conceptual-Machines/jamctl/internal/clock"
	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/logger"
)

// Kind is one of the four turn sources the scheduler serializes.
type Kind string

const (
	KindJamStart  Kind = "jam_start"
	KindDirective Kind = "directive"
	KindAutoTick  Kind = "auto_tick"
	KindSetPreset Kind = "set_preset"
)

// Turn is one unit of scheduled work. DirectiveText/DirectiveTarget/PresetID/
// Mode are only meaningful for their corresponding Kind. HasTarget
// distinguishes "no target" from a zero-value AgentID, since the
// directive turn branches on whether a target was given at all.
type Turn struct {
	ID              int64
	Kind            Kind
	DirectiveText   string
	DirectiveTarget jam.AgentID
	HasTarget       bool
	PresetID        string
	Mode            jam.JamStartMode
}

// Executor runs one turn to completion. Execute must not return until every
// subprocess it spawned has been reaped — no process may outlive
// its turn.
type Executor interface {
	Execute(ctx context.Context, turn Turn)
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, turn Turn)

func (f ExecutorFunc) Execute(ctx context.Context, turn Turn) { f(ctx, turn) }

// Config holds the scheduler's overridable timing knobs, defaulting to the
// governance constants in internal/jam so tests can inject a faster
// auto-tick interval.
type Config struct {
	AutoTickInterval time.Duration
	QueueSize        int
}

// Scheduler owns the single-goroutine turn queue. All session mutation
// happens inside turns run by the Executor on the scheduler's own
// goroutine; nothing else may call back into session state concurrently.
type Scheduler struct {
	cfg      Config
	clk      clock.Clock
	executor Executor

	requests chan Turn
	stop     chan struct{}
	done     chan struct{}

	mu                  sync.Mutex
	nextID              int64
	autoTickOutstanding bool
	stopped             bool
	ticker              clock.Ticker
}

// New creates a Scheduler. executor is required; the scheduler does not
// start its goroutine until Start is called.
func New(cfg Config, clk clock.Clock, executor Executor) *Scheduler {
	if cfg.AutoTickInterval == 0 {
		cfg.AutoTickInterval = jam.AutoTickInterval
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 8
	}
	return &Scheduler{
		cfg:      cfg,
		clk:      clk,
		executor: executor,
		requests: make(chan Turn, cfg.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the scheduler's single consuming goroutine and the
// auto-tick ticker.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.ticker = s.clk.NewTicker(s.cfg.AutoTickInterval)
	s.mu.Unlock()

	go s.tickLoop()
	go s.runLoop()
}

// Enqueue submits a turn for execution. It returns false without enqueuing
// if the scheduler has already been stopped — a directive enqueued
// behind a turn that subsequently triggers a stop is allowed to observe the
// stopped flag and short-circuit.
func (s *Scheduler) Enqueue(turn Turn) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	if turn.Kind == KindAutoTick {
		if s.autoTickOutstanding {
			s.mu.Unlock()
			logger.Debug("scheduler: auto-tick fire dropped, one already queued or in-flight", nil)
			return false
		}
		s.autoTickOutstanding = true
	}
	s.mu.Unlock()

	select {
	case s.requests <- turn:
		return true
	default:
		if turn.Kind == KindAutoTick {
			s.mu.Lock()
			s.autoTickOutstanding = false
			s.mu.Unlock()
		}
		logger.Warn("scheduler: turn queue full, dropping turn", logger.Fields{"kind": string(turn.Kind)})
		return false
	}
}

// ResetAutoTick restarts the auto-tick interval: directives
// reset the timer before the next fire is due.
func (s *Scheduler) ResetAutoTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Reset(s.cfg.AutoTickInterval)
	}
}

// Stop stops accepting new turns and awaits the in-flight turn, then
// returns once the run loop has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

func (s *Scheduler) tickLoop() {
	for {
		select {
		case <-s.ticker.C():
			s.Enqueue(Turn{Kind: KindAutoTick})
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) runLoop() {
	defer close(s.done)
	for {
		select {
		case turn := <-s.requests:
			s.mu.Lock()
			s.nextID++
			turn.ID = s.nextID
			s.mu.Unlock()

			logger.Info("scheduler: turn started", logger.Fields{"turn_id": turn.ID, "kind": string(turn.Kind)})
			start := s.clk.Now()
			s.executor.Execute(context.Background(), turn)
			logger.Info("scheduler: turn completed", logger.Fields{
				"turn_id":     turn.ID,
				"kind":        string(turn.Kind),
				"duration_ms": s.clk.Now().Sub(start).Milliseconds(),
			})

			if turn.Kind == KindAutoTick {
				s.mu.Lock()
				s.autoTickOutstanding = false
				s.mu.Unlock()
			}

		case <-s.stop:
			// Drain nothing further; the in-flight Execute call above has
			// already returned by construction of this select loop.
			return
		}
	}
}
