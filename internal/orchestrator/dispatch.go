package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/llmrunner"
	"github.com/Conceptual-Machines/jamctl/internal/logger"
	"github.com/Conceptual-Machines/jamctl/internal/observability"
)

// turnResult is one agent's outcome from one parallel dispatch round.
type turnResult struct {
	id      jam.AgentID
	resp    *jam.Response
	dropped bool
	err     error
}

// dispatch runs one subprocess turn per id concurrently via errgroup:
// turns are strictly serial across the scheduler, but within one turn the
// per-agent subprocesses run in parallel. Each
// agent's own failure is independent: a dropped or errored agent never
// cancels its siblings, so the group's own error return is always nil and
// ignored — per-agent outcomes are read from the results slice instead.
// round and source tag the Langfuse trace and the turn-latency breadcrumb
// every completed subprocess turn emits; its CloudWatch metrics carry only
// agent and model.
func (o *Orchestrator) dispatch(ctx context.Context, ids []jam.AgentID, round int, source jam.TurnSource, promptFor func(jam.AgentID) string) []turnResult {
	results := make([]turnResult, len(ids))
	handles := make([]*llmrunner.SessionHandle, len(ids))
	for i, id := range ids {
		handles[i] = o.handleFor(id)
	}

	trace := observability.GetClient().StartTrace(ctx, "turn:"+string(source), map[string]interface{}{
		"session_id":  o.sessionID(),
		"round":       round,
		"turn_source": string(source),
	})
	defer trace.Finish()

	var g errgroup.Group
	for i, id := range ids {
		i, id, h := i, id, handles[i]
		prompt := promptFor(id)
		g.Go(func() error {
			gen := trace.Generation(string(id), map[string]interface{}{"agent": string(id)})
			outcome, err := o.runner.RunTurn(ctx, h, prompt)
			results[i] = turnResult{id: id, resp: outcome.Response, dropped: outcome.Dropped, err: err}
			o.recordTurnOutcome(round, source, id, h.Model, outcome)

			output := ""
			if outcome.Response != nil {
				output = outcome.Response.Pattern
			}
			gen.LogTurnCompletion(h.Model, prompt, output, outcome.DurationMs, outcome.CostUSD, map[string]interface{}{
				"turn_source": string(source),
				"round":       round,
			})
			if err != nil || outcome.Dropped || outcome.TimedOut {
				gen.SetLevel("ERROR")
			}
			gen.Finish()
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.dropped {
			logger.Warn("orchestrator: dropping agent session after fatal subprocess failure", logger.Fields{
				"agent": string(r.id), "error": errString(r.err),
			})
			o.session.DropAgentSession(r.id)
			o.dropHandle(r.id)
		} else if r.err != nil {
			logger.Error("orchestrator: turn error", r.err, logger.Fields{"agent": string(r.id)})
		}
	}
	return results
}

// recordTurnOutcome feeds one agent-turn's latency/cost/timeout/retry
// signal to the Sentry breadcrumb logger and, when configured, the
// CloudWatch metrics client: turn latency, timeout count, retry count.
func (o *Orchestrator) recordTurnOutcome(round int, source jam.TurnSource, id jam.AgentID, model string, outcome llmrunner.Outcome) {
	duration := time.Duration(outcome.DurationMs) * time.Millisecond
	logger.LogTurnCompletion(round, string(id), string(source), model, duration, outcome.CostUSD, nil)

	if o.metrics == nil {
		return
	}
	o.metrics.RecordTurnCost(string(id), model, outcome.DurationMs, outcome.CostUSD)
	if outcome.TimedOut {
		o.metrics.RecordTimeout(string(id))
	}
	if outcome.Retried {
		o.metrics.RecordRetry(string(id))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
