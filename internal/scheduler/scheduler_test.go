package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/jamctl/internal/clock"
)

// blockingExecutor runs every turn by appending it to an ordered log and
// blocking until its gate (if any) is released, so tests can force two
// turns to overlap in the queue without overlapping in execution.
type blockingExecutor struct {
	mu    sync.Mutex
	log   []Turn
	gates map[int]chan struct{} // keyed by call index
	calls int32
}

func (e *blockingExecutor) Execute(ctx context.Context, turn Turn) {
	idx := int(atomic.AddInt32(&e.calls, 1)) - 1
	e.mu.Lock()
	e.log = append(e.log, turn)
	gate := e.gates[idx]
	e.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (e *blockingExecutor) snapshot() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Turn(nil), e.log...)
}

func TestSchedulerRunsTurnsStrictlySerially(t *testing.T) {
	gate0 := make(chan struct{})
	exec := &blockingExecutor{gates: map[int]chan struct{}{0: gate0}}
	clk := clock.NewFake(time.Unix(0, 0))
	s := New(Config{AutoTickInterval: time.Hour}, clk, exec)
	s.Start()
	defer s.Stop()

	require.True(t, s.Enqueue(Turn{Kind: KindDirective, DirectiveText: "first"}))
	require.True(t, s.Enqueue(Turn{Kind: KindDirective, DirectiveText: "second"}))

	// The first turn is blocked on gate0; the second must not have started
	// executing yet even though it's already queued.
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, exec.snapshot(), 1)

	close(gate0)

	require.Eventually(t, func() bool { return len(exec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	log := exec.snapshot()
	assert.Equal(t, "first", log[0].DirectiveText)
	assert.Equal(t, "second", log[1].DirectiveText)
	assert.NotEqual(t, log[0].ID, log[1].ID)
}

func TestSchedulerCoalescesAutoTickFires(t *testing.T) {
	gate0 := make(chan struct{})
	exec := &blockingExecutor{gates: map[int]chan struct{}{0: gate0}}
	clk := clock.NewFake(time.Unix(0, 0))
	s := New(Config{AutoTickInterval: time.Millisecond}, clk, exec)
	s.Start()
	defer s.Stop()

	// First fire enqueues and starts running (blocked on gate0). Every
	// subsequent fire before it completes must be dropped, not queued.
	clk.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(exec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	clk.Advance(time.Millisecond)
	clk.Advance(time.Millisecond)
	clk.Advance(time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, exec.snapshot(), 1, "coalesced fires must not queue additional auto-ticks")

	close(gate0)
	require.Eventually(t, func() bool { return len(exec.snapshot()) >= 1 }, time.Second, 5*time.Millisecond)

	// Once the in-flight tick completes, a later fire is accepted again.
	clk.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(exec.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerResetAutoTickRestartsInterval(t *testing.T) {
	exec := &blockingExecutor{gates: map[int]chan struct{}{}}
	clk := clock.NewFake(time.Unix(0, 0))
	s := New(Config{AutoTickInterval: 10 * time.Millisecond}, clk, exec)
	s.Start()
	defer s.Stop()

	clk.Advance(6 * time.Millisecond)
	s.ResetAutoTick()
	clk.Advance(6 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, exec.snapshot(), "reset should have pushed the next fire past the elapsed time")

	clk.Advance(4 * time.Millisecond)
	require.Eventually(t, func() bool { return len(exec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerStopAwaitsInFlightTurnAndRejectsNewOnes(t *testing.T) {
	gate0 := make(chan struct{})
	exec := &blockingExecutor{gates: map[int]chan struct{}{0: gate0}}
	clk := clock.NewFake(time.Unix(0, 0))
	s := New(Config{AutoTickInterval: time.Hour}, clk, exec)
	s.Start()

	require.True(t, s.Enqueue(Turn{Kind: KindDirective, DirectiveText: "in-flight"}))
	require.Eventually(t, func() bool { return len(exec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	// Stop must wait for the in-flight turn rather than returning early.
	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight turn completed")
	case <-time.After(20 * time.Millisecond):
	}

	assert.False(t, s.Enqueue(Turn{Kind: KindDirective, DirectiveText: "rejected"}),
		"a directive racing a stop must observe the stopped flag and short-circuit")

	close(gate0)
	<-stopped
}

func TestSchedulerEnqueueAssignsMonotonicTurnIDs(t *testing.T) {
	exec := &blockingExecutor{gates: map[int]chan struct{}{}}
	clk := clock.NewFake(time.Unix(0, 0))
	s := New(Config{AutoTickInterval: time.Hour}, clk, exec)
	s.Start()
	defer s.Stop()

	for i := 0; i < 3; i++ {
		require.True(t, s.Enqueue(Turn{Kind: KindDirective}))
	}
	require.Eventually(t, func() bool { return len(exec.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	log := exec.snapshot()
	assert.Less(t, int64(0), log[0].ID)
	assert.Equal(t, log[0].ID+1, log[1].ID)
	assert.Equal(t, log[1].ID+1, log[2].ID)
}
