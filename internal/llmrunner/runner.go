package llmrunner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Conceptual-Machines/jamctl/internal/clock"
	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/logger"
)

// SessionHandle is the per-agent session record: the persona system prompt
// built once at session start, the model identifier, the thread id (empty
// until the first subprocess event sets it), and whether a cache-TTL
// stderr warning has already been logged for this agent.
type SessionHandle struct {
	Agent        jam.AgentID
	SystemPrompt string
	Model        string
	ThreadID     string

	loggedCacheTTLWarning bool
}

// Config holds the subprocess invocation knobs: the `llm` CLI
// binary path, the default profile, and any `-c key=val` overrides applied
// to every turn.
type Config struct {
	Binary          string
	Profile         string
	ConfigOverrides map[string]string
	AgentTimeout    time.Duration
}

// Runner spawns one subprocess per agent-turn and speaks the NDJSON
// turn protocol over its stdout.
type Runner struct {
	cfg     Config
	spawner Spawner
	clk     clock.Clock
}

// New creates a Runner. spawner defaults to OSSpawner when nil.
func New(cfg Config, spawner Spawner, clk clock.Clock) *Runner {
	if spawner == nil {
		spawner = OSSpawner{}
	}
	if cfg.AgentTimeout == 0 {
		cfg.AgentTimeout = jam.AgentTimeout
	}
	return &Runner{cfg: cfg, spawner: spawner, clk: clk}
}

// buildArgv builds the subprocess argument vector: full profile args on
// the first turn, `resume <thread_id>` on subsequent ones, always
// including the model identifier and config overrides.
func (r *Runner) buildArgv(h *SessionHandle) []string {
	argv := []string{"exec"}
	if r.cfg.Profile != "" {
		argv = append(argv, "--profile", r.cfg.Profile)
	}
	if h.Model != "" {
		argv = append(argv, "--model", h.Model)
	}
	for k, v := range r.cfg.ConfigOverrides {
		argv = append(argv, "-c", k+"="+v)
	}
	if h.ThreadID != "" {
		argv = append(argv, "resume", h.ThreadID, "-")
	} else {
		argv = append(argv, "-")
	}
	return argv
}

// Outcome is one agent-turn's result plus the operational data
// internal/metrics and internal/logger need to record turn-latency,
// timeout, and retry signals against. DurationMs is the subprocess's own wall-clock
// duration; CostUSD comes from the turn.completed event's usage block
// when the CLI reports one, zero otherwise.
type Outcome struct {
	Response   *jam.Response
	Dropped    bool
	Retried    bool
	TimedOut   bool
	DurationMs int64
	CostUSD    float64
}

// RunTurn runs one agent-turn's subprocess protocol end to end: spawn,
// write the prompt, stream NDJSON, enforce the timeout, retry once on a
// recognized transport error, and parse the final response.
// Outcome.Dropped reports that the subprocess exited non-zero without a
// recognized transport error: the caller must drop the agent
// session rather than leave it in the active map for a future turn.
func (r *Runner) RunTurn(ctx context.Context, h *SessionHandle, prompt string) (Outcome, error) {
	start := r.clk.Now()
	resp, transportErr, dropped, timedOut, costUSD, runErr := r.attempt(ctx, h, prompt)
	if !transportErr {
		return Outcome{
			Response: resp, Dropped: dropped, TimedOut: timedOut,
			DurationMs: r.clk.Now().Sub(start).Milliseconds(), CostUSD: costUSD,
		}, runErr
	}

	// Exactly one retry on a recognized transport error.
	logger.Warn("llmrunner: retrying turn after transport error", logger.Fields{"agent": string(h.Agent)})
	resp, _, dropped, timedOut, costUSD, runErr = r.attempt(ctx, h, prompt)
	return Outcome{
		Response: resp, Dropped: dropped, Retried: true, TimedOut: timedOut,
		DurationMs: r.clk.Now().Sub(start).Milliseconds(), CostUSD: costUSD,
	}, runErr
}

// attempt runs exactly one subprocess lifecycle for one turn. It reports
// transportErr=true when the subprocess should be retried,
// dropped=true for a fatal non-zero exit that drops the agent session,
// and timedOut=true when the turn hit its AgentTimeout deadline; these
// three are mutually exclusive.
func (r *Runner) attempt(ctx context.Context, h *SessionHandle, prompt string) (resp *jam.Response, transportErr, dropped, timedOut bool, costUSD float64, err error) {
	turnCtx, cancel := context.WithTimeout(ctx, r.cfg.AgentTimeout)
	defer cancel()

	argv := r.buildArgv(h)
	proc, err := r.spawner.Spawn(turnCtx, r.cfg.Binary, argv)
	if err != nil {
		return nil, false, false, false, 0, fmt.Errorf("llmrunner: spawn failed: %w", err)
	}

	var exitErr error
	stopped := false
	stop := func() error {
		if !stopped {
			exitErr = stopProcess(proc)
			stopped = true
		}
		return exitErr
	}
	defer stop()

	if _, werr := proc.Stdin().Write([]byte(prompt + "\n")); werr != nil {
		return nil, false, false, false, 0, fmt.Errorf("llmrunner: stdin write failed: %w", werr)
	}
	_ = proc.Stdin().Close()

	var text bytes.Buffer
	st := parseState{}
	sawTransportError := false
	var turnErr error
	var turnCostUSD float64
	done := false

	stdout := proc.StdoutLines()
	stderr := proc.StderrLines()

	for !done {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				if stderr == nil {
					done = true
					break
				}
				continue
			}
			var events []Event
			var fragments []string
			events, st, done, fragments = mapEvent([]byte(line), st)
			for _, frag := range fragments {
				text.WriteString(frag)
			}
			for _, ev := range events {
				switch ev.Kind {
				case EventThreadStarted:
					h.ThreadID = ev.ThreadID
				case EventStatusDone:
					turnCostUSD = ev.CostUSD
				case EventError:
					turnErr = fmt.Errorf("llmrunner: agent error: %s", ev.Err)
				}
			}

		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				if stdout == nil {
					done = true
					break
				}
				continue
			}
			if isTransportError(line) {
				sawTransportError = true
			} else if isCacheTTLWarning(line) && !h.loggedCacheTTLWarning {
				h.loggedCacheTTLWarning = true
				logger.Warn("llmrunner: cache TTL warning", logger.Fields{"agent": string(h.Agent)})
			} else {
				logger.Debug("llmrunner: stderr", logger.Fields{"agent": string(h.Agent), "line": line})
			}

		case <-turnCtx.Done():
			// No status=done/result within AgentTimeout; a
			// null response, not an error — the caller treats this like
			// a parse failure.
			return nil, false, false, true, 0, nil
		}
	}

	if sawTransportError {
		return nil, true, false, false, 0, nil
	}
	if turnErr != nil {
		return nil, false, true, false, 0, turnErr
	}

	// A non-zero exit that never surfaced as a recognized transport error
	// or a turn.failed/error event still means the subprocess failed its
	// job; the caller drops the agent session for it.
	if werr := stop(); werr != nil && !sawTransportError {
		return nil, false, true, false, 0, fmt.Errorf("llmrunner: subprocess exited with error: %w", werr)
	}

	return ParseResponse(strings.TrimSpace(text.String())), false, false, false, turnCostUSD, nil
}
