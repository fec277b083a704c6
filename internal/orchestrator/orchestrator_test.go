package orchestrator

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/jamctl/internal/broadcast"
	"github.com/Conceptual-Machines/jamctl/internal/clock"
	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/llmrunner"
)

// -- scripted subprocess plumbing -------------------------------------------
//
// These end-to-end tests drive the real Scheduler/Orchestrator wiring over a
// fake subprocess layer instead of a real `llm` binary — the same
// technique internal/llmrunner's own tests use, lifted one level up so a
// whole turn
// (prompt build -> dispatch -> validate -> apply -> broadcast) exercises
// real code end to end.

// scriptedProcess defers computing its stdout until the prompt has been
// written to stdin, so the resolver can read the prompt text to decide
// which scripted lines to hand back (the runner always writes stdin before
// it asks for StdoutLines()).
type scriptedProcess struct {
	stdin   *captureWriteCloser
	resolve func(prompt string) []string
	gate    <-chan struct{} // optional; StdoutLines blocks until closed
}

type captureWriteCloser struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (w *captureWriteCloser) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}
func (w *captureWriteCloser) Close() error { return nil }
func (w *captureWriteCloser) text() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (p *scriptedProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *scriptedProcess) StdoutLines() <-chan string {
	if p.gate != nil {
		<-p.gate
	}
	lines := p.resolve(p.stdin.text())
	ch := make(chan string, len(lines)+1)
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func (p *scriptedProcess) StderrLines() <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}
func (p *scriptedProcess) Terminate() error { return nil }
func (p *scriptedProcess) Kill() error      { return nil }
func (p *scriptedProcess) Wait() error      { return nil }

// scriptedSpawner hands every spawned turn to the same resolver; tests
// close over per-turn state (gates, per-agent maps) inside resolve.
type scriptedSpawner struct {
	resolve func(prompt string) []string
	gate    <-chan struct{}
}

func (s *scriptedSpawner) Spawn(ctx context.Context, bin string, argv []string) (llmrunner.Process, error) {
	return &scriptedProcess{stdin: &captureWriteCloser{}, resolve: s.resolve, gate: s.gate}, nil
}

// ndjsonFor renders a single-line NDJSON turn: one assistant-message delta
// carrying the full JSON response body, then turn.completed, matching the
// shape internal/llmrunner's own tests use.
func ndjsonFor(body string) []string {
	delta := fmt.Sprintf(`{"type":"item.agent.message.delta","delta":%s}`, jsonQuote(body))
	return []string{delta, `{"type":"turn.completed"}`}
}

func jsonQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func simpleResponse(pattern, thoughts string) string {
	return fmt.Sprintf(`{"pattern":%s,"thoughts":%s}`, jsonQuote(pattern), jsonQuote(thoughts))
}

// detectAgent figures out which active agent a prompt was built for by
// checking which peer's display name is absent from the band-state
// section (every prompt kind excludes self from the peer list).
func detectAgent(t *testing.T, prompt string, active []jam.AgentID) jam.AgentID {
	t.Helper()
	if len(active) == 1 {
		return active[0]
	}
	section := prompt
	if i := strings.Index(prompt, "BAND STATE:"); i >= 0 {
		section = prompt[i:]
	}
	for _, id := range active {
		meta, ok := jam.Meta(id)
		require.True(t, ok)
		if !strings.Contains(section, meta.DisplayName) {
			return id
		}
	}
	t.Fatalf("could not detect agent from prompt:\n%s", prompt)
	return ""
}

// -- test harness ------------------------------------------------------------

type harness struct {
	t      *testing.T
	clk    *clock.Fake
	hub    *broadcast.Hub
	orch   *Orchestrator
	subID  int64
	events <-chan broadcast.Event
}

func newHarness(t *testing.T, resolve func(prompt string) []string) *harness {
	t.Helper()
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	hub := broadcast.New()
	spawner := &scriptedSpawner{resolve: resolve}
	runner := llmrunner.New(llmrunner.Config{Binary: "llm", AgentTimeout: 2 * time.Second}, spawner, clk)
	orch, err := New(clk, runner, hub, nil, "lofi", "gpt-5.1")
	require.NoError(t, err)

	subID, events := hub.Subscribe()
	return &harness{t: t, clk: clk, hub: hub, orch: orch, subID: subID, events: events}
}

func (h *harness) close() {
	h.orch.Stop()
	h.hub.Unsubscribe(h.subID)
}

// waitFor drains events until pred matches one, failing the test if none
// arrives within the timeout. It returns every event seen, including the
// matching one, so callers can also assert on ordering/interleaving.
func (h *harness) waitFor(pred func(broadcast.Event) bool, timeout time.Duration) []broadcast.Event {
	h.t.Helper()
	var seen []broadcast.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-h.events:
			seen = append(seen, ev)
			if pred(ev) {
				return seen
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for event; saw %d events", len(seen))
			return nil
		}
	}
}

func isJamStateRound(round int) func(broadcast.Event) bool {
	return func(ev broadcast.Event) bool {
		if ev.Type != broadcast.TypeJamStateUpdate {
			return false
		}
		p := ev.Payload.(broadcast.JamStateUpdatePayload)
		return p.JamState.RoundNumber == round
	}
}

func isDirectiveError(ev broadcast.Event) bool { return ev.Type == broadcast.TypeDirectiveError }

// -- turn serialization ------------------------------------------------------

func TestDirectiveWaitsForInFlightAutoTick(t *testing.T) {
	var mu sync.Mutex
	tickGate := make(chan struct{})

	resolve := func(prompt string) []string {
		mu.Lock()
		isTick := strings.Contains(prompt, "AUTO-TICK")
		mu.Unlock()
		if isTick {
			<-tickGate
		}
		if strings.Contains(prompt, "JAM START") {
			return ndjsonFor(simpleResponse("s(\"bd sd\")", "starting the groove"))
		}
		if isTick {
			return ndjsonFor(simpleResponse("no_change", "still good"))
		}
		return ndjsonFor(simpleResponse("s(\"bd sd hh\")", "more cowbell added"))
	}

	h := newHarness(t, resolve)
	defer h.close()

	_, err := h.orch.Start([]jam.AgentID{jam.Drums}, jam.ModeAutonomousOpening)
	require.NoError(t, err)
	h.waitFor(isJamStateRound(1), 2*time.Second)

	require.NoError(t, h.orch.SetJamPreset("house-groove"))
	h.waitFor(func(ev broadcast.Event) bool {
		if ev.Type != broadcast.TypeJamStateUpdate {
			return false
		}
		return ev.Payload.(broadcast.JamStateUpdatePayload).TurnSource == string(jam.TurnSetPreset)
	}, 2*time.Second)

	// Fire the auto-tick timer; its subprocess blocks on tickGate until we
	// release it below, simulating "tick still in flight".
	h.clk.Advance(jam.AutoTickInterval)

	target := jam.Drums
	require.NoError(t, h.orch.HandleDirective("More cowbell!", &target))

	close(tickGate)

	evs := h.waitFor(isJamStateRound(4), 3*time.Second)
	var seq []int
	for _, ev := range evs {
		if ev.Type == broadcast.TypeJamStateUpdate {
			seq = append(seq, ev.Payload.(broadcast.JamStateUpdatePayload).JamState.RoundNumber)
		}
	}
	assert.Equal(t, []int{3, 4}, seq)
}

func TestTwoSimultaneousDirectivesSerialize(t *testing.T) {
	firstGate := make(chan struct{})
	var seenFirst bool
	var mu sync.Mutex

	resolve := func(prompt string) []string {
		if strings.Contains(prompt, "JAM START") {
			return ndjsonFor(simpleResponse("s(\"bd sd\")", "starting"))
		}
		mu.Lock()
		isFirst := !seenFirst
		seenFirst = true
		mu.Unlock()
		if isFirst {
			<-firstGate
			return ndjsonFor(simpleResponse("s(\"bd sd\").fast(2)", "faster now"))
		}
		return ndjsonFor(simpleResponse("s(\"bd sd\").fast(2).gain(0.9)", "louder now"))
	}

	h := newHarness(t, resolve)
	defer h.close()

	_, err := h.orch.Start([]jam.AgentID{jam.Drums}, jam.ModeAutonomousOpening)
	require.NoError(t, err)
	h.waitFor(isJamStateRound(1), 2*time.Second)

	require.NoError(t, h.orch.SetJamPreset("house-groove"))
	h.waitFor(func(ev broadcast.Event) bool {
		return ev.Type == broadcast.TypeJamStateUpdate &&
			ev.Payload.(broadcast.JamStateUpdatePayload).TurnSource == string(jam.TurnSetPreset)
	}, 2*time.Second)

	require.NoError(t, h.orch.HandleDirective("Faster!", nil))
	require.NoError(t, h.orch.HandleDirective("Louder!", nil))
	close(firstGate)

	evs := h.waitFor(isJamStateRound(4), 3*time.Second)
	var seq []int
	for _, ev := range evs {
		if ev.Type == broadcast.TypeJamStateUpdate {
			seq = append(seq, ev.Payload.(broadcast.JamStateUpdatePayload).JamState.RoundNumber)
		}
	}
	assert.Equal(t, []int{3, 4}, seq)
}

// -- key consensus -----------------------------------------------------------

func TestAutoTickKeyConsensusAcrossTwoAgents(t *testing.T) {
	active := []jam.AgentID{jam.Drums, jam.Bass, jam.Melody, jam.Chords}

	resolve := func(prompt string) []string {
		if strings.Contains(prompt, "JAM START") {
			return ndjsonFor(simpleResponse("s(\"bd\")", "laying a base"))
		}
		id := detectAgent(t, prompt, active)
		switch id {
		case jam.Bass, jam.Melody:
			return ndjsonFor(fmt.Sprintf(
				`{"pattern":"no_change","thoughts":"feels like a key change","decision":{"suggested_key":"G major","confidence":"high"}}`))
		default:
			return ndjsonFor(simpleResponse("no_change", "holding"))
		}
	}

	h := newHarness(t, resolve)
	defer h.close()

	_, err := h.orch.Start(active, jam.ModeAutonomousOpening)
	require.NoError(t, err)
	h.waitFor(isJamStateRound(1), 2*time.Second)

	require.NoError(t, h.orch.SetJamPreset("house-groove"))
	h.waitFor(func(ev broadcast.Event) bool {
		return ev.Type == broadcast.TypeJamStateUpdate &&
			ev.Payload.(broadcast.JamStateUpdatePayload).TurnSource == string(jam.TurnSetPreset)
	}, 2*time.Second)

	h.clk.Advance(jam.AutoTickInterval)
	evs := h.waitFor(isJamStateRound(3), 3*time.Second)

	var final jam.Snapshot
	for _, ev := range evs {
		if ev.Type == broadcast.TypeJamStateUpdate {
			final = ev.Payload.(broadcast.JamStateUpdatePayload).JamState
		}
	}
	assert.Equal(t, "G major", final.Context.Key)
	assert.Equal(t, []string{"G", "A", "B", "C", "D", "E", "F#"}, final.Context.Scale)
	assert.Equal(t, []string{"G", "Em", "C", "D"}, final.Context.ChordProgression)
}

// -- explicit BPM anchor overrides a relative cue ----------------------------

func TestExplicitBPMOverridesRelativeTempoCue(t *testing.T) {
	resolve := func(prompt string) []string {
		if strings.Contains(prompt, "JAM START") {
			return ndjsonFor(simpleResponse("s(\"bd sd\")", "starting"))
		}
		return ndjsonFor(`{"pattern":"no_change","thoughts":"locking in","decision":{"tempo_delta_pct":40,"confidence":"high"}}`)
	}

	h := newHarness(t, resolve)
	defer h.close()

	_, err := h.orch.Start([]jam.AgentID{jam.Drums}, jam.ModeAutonomousOpening)
	require.NoError(t, err)
	h.waitFor(isJamStateRound(1), 2*time.Second)

	require.NoError(t, h.orch.SetJamPreset("house-groove")) // BPM 124
	h.waitFor(func(ev broadcast.Event) bool {
		return ev.Type == broadcast.TypeJamStateUpdate &&
			ev.Payload.(broadcast.JamStateUpdatePayload).TurnSource == string(jam.TurnSetPreset)
	}, 2*time.Second)

	require.NoError(t, h.orch.HandleDirective("BPM 140 and faster", nil))
	evs := h.waitFor(isJamStateRound(3), 3*time.Second)

	var final jam.Snapshot
	for _, ev := range evs {
		if ev.Type == broadcast.TypeJamStateUpdate {
			final = ev.Payload.(broadcast.JamStateUpdatePayload).JamState
		}
	}
	assert.Equal(t, 140, final.Context.BPM)
}

// -- auto-tick silence coercion ----------------------------------------------

func TestAutoTickSilenceCoercedToNoChange(t *testing.T) {
	resolve := func(prompt string) []string {
		if strings.Contains(prompt, "JAM START") {
			return ndjsonFor(simpleResponse(`s("bd sd")`, "groove's in"))
		}
		if strings.Contains(prompt, "AUTO-TICK") {
			return ndjsonFor(`{"pattern":"silence","thoughts":"thinking about it","decision":{"arrangement_intent":"hold","confidence":"medium"}}`)
		}
		return ndjsonFor(simpleResponse(jam.PatternNoChange, "steady"))
	}

	h := newHarness(t, resolve)
	defer h.close()

	_, err := h.orch.Start([]jam.AgentID{jam.Drums}, jam.ModeAutonomousOpening)
	require.NoError(t, err)
	h.waitFor(isJamStateRound(1), 2*time.Second)

	require.NoError(t, h.orch.SetJamPreset("house-groove"))
	h.waitFor(func(ev broadcast.Event) bool {
		return ev.Type == broadcast.TypeJamStateUpdate &&
			ev.Payload.(broadcast.JamStateUpdatePayload).TurnSource == string(jam.TurnSetPreset)
	}, 2*time.Second)

	h.clk.Advance(jam.AutoTickInterval)
	evs := h.waitFor(isJamStateRound(3), 3*time.Second)

	var final jam.Snapshot
	for _, ev := range evs {
		if ev.Type == broadcast.TypeJamStateUpdate {
			final = ev.Payload.(broadcast.JamStateUpdatePayload).JamState
		}
	}
	var drums jam.AgentSnapshot
	for _, a := range final.Agents {
		if a.ID == jam.Drums {
			drums = a
		}
	}
	assert.Equal(t, `s("bd sd")`, drums.CurrentPattern)
	assert.Equal(t, jam.StatusPlaying, drums.Status)
}

// -- directive targeting an agent outside the session ------------------------

func TestDirectiveTargetNotInSessionEmitsError(t *testing.T) {
	resolve := func(prompt string) []string {
		return ndjsonFor(simpleResponse("s(\"bd\")", "ok"))
	}

	h := newHarness(t, resolve)
	defer h.close()

	_, err := h.orch.Start([]jam.AgentID{jam.Drums}, jam.ModeAutonomousOpening)
	require.NoError(t, err)
	h.waitFor(isJamStateRound(1), 2*time.Second)

	require.NoError(t, h.orch.SetJamPreset("house-groove"))
	h.waitFor(func(ev broadcast.Event) bool {
		return ev.Type == broadcast.TypeJamStateUpdate &&
			ev.Payload.(broadcast.JamStateUpdatePayload).TurnSource == string(jam.TurnSetPreset)
	}, 2*time.Second)

	before, err := h.orch.GetJamStateSnapshot()
	require.NoError(t, err)
	roundBefore := before.RoundNumber

	target := jam.Bass
	require.NoError(t, h.orch.HandleDirective("play a bassline", &target))

	evs := h.waitFor(isDirectiveError, 2*time.Second)
	var errEv broadcast.Event
	for _, ev := range evs {
		if ev.Type == broadcast.TypeDirectiveError {
			errEv = ev
		}
		// A jam_state_update here would mean the rejected directive was
		// treated as a real turn; there must be none for this round.
		if ev.Type == broadcast.TypeJamStateUpdate {
			t.Fatalf("unexpected jam_state_update for a rejected directive: %+v", ev.Payload)
		}
	}
	msg := errEv.Payload.(broadcast.DirectiveErrorPayload).Message
	assert.Contains(t, msg, "Bass")
	assert.Contains(t, msg, "not in this jam session")

	after, err := h.orch.GetJamStateSnapshot()
	require.NoError(t, err)
	assert.Equal(t, roundBefore, after.RoundNumber)
}
