package orchestrator

import (
	"context"
	"fmt"

	"github.com/Conceptual-Machines/jamctl/internal/broadcast"
	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/logger"
	"github.com/Conceptual-Machines/jamctl/internal/musicctx"
	"github.com/Conceptual-Machines/jamctl/internal/pattern"
	"github.com/Conceptual-Machines/jamctl/internal/promptbuilder"
	"github.com/Conceptual-Machines/jamctl/internal/scheduler"
)

// executeTurn is the scheduler.Executor entrypoint: the single goroutine the
// scheduler runs every turn kind on.
func (o *Orchestrator) executeTurn(ctx context.Context, turn scheduler.Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == nil {
		return
	}
	switch turn.Kind {
	case scheduler.KindJamStart:
		o.runJamStart(ctx, turn)
	case scheduler.KindDirective:
		o.runDirective(ctx, turn)
	case scheduler.KindAutoTick:
		o.runAutoTick(ctx, turn)
	case scheduler.KindSetPreset:
		o.runSetPreset(turn)
	}
}

// peerStatesExcept builds the band-state lines for every other active
// agent, excluding self.
func (o *Orchestrator) peerStatesExcept(self jam.AgentID) []promptbuilder.PeerState {
	var peers []promptbuilder.PeerState
	for _, id := range jam.AllAgentIDs {
		if id == self || !o.session.IsActive(id) {
			continue
		}
		meta, _ := jam.Meta(id)
		a := o.session.Agent(id)
		peers = append(peers, promptbuilder.PeerState{
			ID:      id,
			Emoji:   meta.Emoji,
			Name:    meta.DisplayName,
			Key:     o.session.Context.Key,
			Pattern: a.CurrentPattern,
			Muted:   o.session.IsMuted(id),
			HasRun:  o.session.IsActivated(id),
		})
	}
	return peers
}

func (o *Orchestrator) audioSummary() (string, bool) {
	return o.session.AudioFeedbackSummary()
}

// autoTickInfo builds the auto-tick timing record against the fixed
// AutoTickInterval governance constant.
func (o *Orchestrator) autoTickInfo() broadcast.AutoTickInfo {
	now := o.clk.Now()
	return broadcast.AutoTickInfo{
		IntervalMs:   jam.AutoTickInterval.Milliseconds(),
		NextTickAtMs: now.Add(jam.AutoTickInterval).UnixMilli(),
		ServerNowMs:  now.UnixMilli(),
	}
}

// publishAutoTickTiming emits auto_tick_timing_update on every timer
// reset.
func (o *Orchestrator) publishAutoTickTiming() {
	if o.session == nil || o.session.Stopped() {
		return
	}
	o.hub.Publish(broadcast.Event{Type: broadcast.TypeAutoTickTimingUpdate, Payload: broadcast.AutoTickTimingUpdatePayload{
		AutoTick: o.autoTickInfo(),
	}})
}

// runSetPreset installs a named preset as the session's initial musical
// context and flips the configured flag that gates directives. Like every
// other completed turn, it advances the round once.
func (o *Orchestrator) runSetPreset(turn scheduler.Turn) {
	if o.session.Stopped() {
		return
	}
	if _, ok := o.session.SetPreset(turn.PresetID); !ok {
		o.publishDirectiveError(fmt.Sprintf("%q is not a known preset", turn.PresetID), "", false)
		return
	}
	o.session.NextRound()
	o.broadcastState(jam.TurnSetPreset)
}

// runJamStart runs the opening turn: autonomous_opening dispatches a jam-start
// prompt to every active agent; staged_silent only publishes the empty
// snapshot the timer needs to start against.
func (o *Orchestrator) runJamStart(ctx context.Context, turn scheduler.Turn) {
	if o.session.Mode != jam.ModeAutonomousOpening {
		o.broadcastState(jam.TurnJamStart)
		return
	}

	ids := o.session.ActivatedUnmuted(o.liveSession)
	round := o.session.NextRound()
	for _, id := range ids {
		o.session.Agent(id).Status = jam.StatusThinking
	}

	results := o.dispatch(ctx, ids, round, jam.TurnJamStart, func(id jam.AgentID) string {
		summary, has := o.audioSummary()
		return promptbuilder.JamStart(round, o.session.Context, o.peerStatesExcept(id), summary, has)
	})

	o.applyResults(results, jam.TurnJamStart, "", false, round, false)
	o.broadcastState(jam.TurnJamStart)
}

// runDirective runs one boss-directive turn end to end: preconditions,
// mute handling, deterministic anchors, parallel dispatch, repair retries,
// apply, cue-gated aggregation, broadcast, timer reset.
func (o *Orchestrator) runDirective(ctx context.Context, turn scheduler.Turn) {
	s := o.session
	target, hasTarget := turn.DirectiveTarget, turn.HasTarget

	// Directives require a configured preset.
	if !s.PresetSet {
		o.publishDirectiveError("Choose a genre preset and press Play before sending directives.", "", false)
		o.sched.ResetAutoTick()
		o.publishAutoTickTiming()
		return
	}

	// Target validation.
	if hasTarget {
		if !s.IsActive(target) {
			o.publishDirectiveError(fmt.Sprintf("%s is not in this jam session", displayName(target)), target, true)
			o.sched.ResetAutoTick()
			o.publishAutoTickTiming()
			return
		}
		if !o.liveSession(target) {
			o.publishDirectiveError(fmt.Sprintf("%s's process is unavailable", displayName(target)), target, true)
			o.sched.ResetAutoTick()
			o.publishAutoTickTiming()
			return
		}
	}

	// Mute-verb handling.
	if hasTarget && s.IsMuted(target) && !isExplicitMute(turn.DirectiveText) {
		s.Unmute(target)
	}

	// Deterministic anchors.
	anchors := musicctx.ParseAnchors(turn.DirectiveText, s.Context.BPM)
	s.ApplyAnchors(anchors)

	// Determine targets.
	var targets []jam.AgentID
	if hasTarget {
		s.Activate(target)
		targets = []jam.AgentID{target}
	} else {
		targets = s.ActivatedUnmuted(o.liveSession)
		if len(targets) == 0 {
			o.publishDirectiveError("no agents are available to receive this directive", "", false)
			o.sched.ResetAutoTick()
			o.publishAutoTickTiming()
			return
		}
	}
	for _, id := range targets {
		s.Agent(id).Status = jam.StatusThinking
		s.Agent(id).PendingThreadCompaction = false
		s.Agent(id).AutoTickNoChangeStreak = 0
	}

	// Round increment + parallel dispatch.
	round := s.NextRound()
	promptFor := func(id jam.AgentID) string {
		summary, has := o.audioSummary()
		return promptbuilder.Directive(round, turn.DirectiveText, hasTarget && id == target,
			s.Context, s.Agent(id).CurrentPattern, o.peerStatesExcept(id), summary, has)
	}
	results := o.dispatch(ctx, targets, round, jam.TurnDirective, promptFor)

	// One repair retry per rejected/null response.
	results = o.repairRetry(ctx, results, round, func(id jam.AgentID, reason string) string {
		summary, has := o.audioSummary()
		base := promptbuilder.Directive(round, turn.DirectiveText, hasTarget && id == target,
			s.Context, s.Agent(id).CurrentPattern, o.peerStatesExcept(id), summary, has)
		return base + fmt.Sprintf("\n\nYour previous response was rejected (%s). Respond again with strictly valid JSON matching the contract.", reason)
	})

	// Explicit single-target mute coercion.
	if hasTarget && isExplicitMute(turn.DirectiveText) {
		for i, r := range results {
			if r.id != target {
				continue
			}
			results[i].resp = &jam.Response{Pattern: jam.PatternSilence, Thoughts: "Muting for the boss."}
			s.Mute(target)
		}
	}

	// Apply responses, then model-relative context delta.
	decisions := o.applyResults(results, jam.TurnDirective, target, hasTarget, round, false)
	o.applyModelRelativeDelta(turn.DirectiveText, anchors, decisions)

	// Compose, broadcast, restart the auto-tick timer.
	o.broadcastState(jam.TurnDirective)
	o.sched.ResetAutoTick()
	o.publishAutoTickTiming()
}

// applyModelRelativeDelta folds decision deltas into the context: a cue
// direction only pulls decisions into the aggregate when no deterministic
// anchor already set that axis, and only decisions whose sign agrees with
// the cue direction contribute.
func (o *Orchestrator) applyModelRelativeDelta(text string, anchors musicctx.Partial, decisions map[jam.AgentID]*jam.Decision) {
	cues := musicctx.ParseCues(text)
	filtered := make(map[jam.AgentID]*jam.Decision, len(decisions))

	tempoEligible := cues.Tempo != musicctx.DirectionNone && cues.Tempo != musicctx.DirectionMixed && anchors.BPM == nil
	energyEligible := cues.Energy != musicctx.DirectionNone && cues.Energy != musicctx.DirectionMixed && anchors.Energy == nil
	if !tempoEligible && !energyEligible {
		return
	}

	for id, d := range decisions {
		if d == nil {
			continue
		}
		fd := *d
		if !tempoEligible || !cueAgrees(cues.Tempo, d.HasTempoDelta, d.TempoDeltaPct) {
			fd.HasTempoDelta = false
		}
		if !energyEligible || !cueAgreesInt(cues.Energy, d.HasEnergyDelta, d.EnergyDelta) {
			fd.HasEnergyDelta = false
		}
		if fd.HasTempoDelta || fd.HasEnergyDelta {
			filtered[id] = &fd
		}
	}
	if len(filtered) > 0 {
		o.session.AggregateDirective(filtered)
	}
}

func cueAgrees(dir musicctx.Direction, has bool, delta float64) bool {
	if !has {
		return false
	}
	if dir == musicctx.DirectionIncrease {
		return delta > 0
	}
	return delta < 0
}

func cueAgreesInt(dir musicctx.Direction, has bool, delta int) bool {
	if !has {
		return false
	}
	if dir == musicctx.DirectionIncrease {
		return delta > 0
	}
	return delta < 0
}

// runAutoTick runs one timer-driven turn: thread compaction, parallel
// dispatch, apply, dampened drift aggregation, key/chord suggestions,
// broadcast.
func (o *Orchestrator) runAutoTick(ctx context.Context, _ scheduler.Turn) {
	s := o.session

	// Stopped or unconfigured sessions tick as a no-op.
	if s.Stopped() || !s.PresetSet {
		return
	}

	// Deferred thread compaction.
	for _, id := range s.ConsumePendingThreadCompaction() {
		if h, ok := o.handles[id]; ok {
			h.ThreadID = ""
		}
	}

	// Participants.
	ids := s.ActivatedUnmuted(o.liveSession)
	if len(ids) == 0 {
		return
	}

	// Auto-tick fires emit a separate auto_tick_fired before dispatch.
	o.hub.Publish(broadcast.Event{Type: broadcast.TypeAutoTickFired, Payload: broadcast.AutoTickFiredPayload{
		SessionID:    s.SessionID,
		Round:        s.RoundNumber + 1,
		ActiveAgents: ids,
		AutoTick:     o.autoTickInfo(),
		FiredAtMs:    o.clk.Now().UnixMilli(),
	}})

	// Dispatch.
	round := s.NextRound()
	for _, id := range ids {
		s.Agent(id).Status = jam.StatusThinking
	}
	results := o.dispatch(ctx, ids, round, jam.TurnAutoTick, func(id jam.AgentID) string {
		summary, has := o.audioSummary()
		return promptbuilder.AutoTick(round, s.Context, s.Agent(id).CurrentPattern, o.peerStatesExcept(id), summary, has)
	})

	// Apply responses (no-change streak bookkeeping happens inside).
	decisions := o.applyResults(results, jam.TurnAutoTick, "", false, round, true)

	// Dampened drift + context suggestions.
	if len(decisions) > 0 {
		s.AggregateAutoTick(decisions)
	}

	// Compose and broadcast.
	o.broadcastState(jam.TurnAutoTick)
}

// repairRetry performs exactly one retry per rejected or
// null response, with a repair-context note; a retry that is again rejected
// keeps the agent's previous pattern (i.e. the response is left null so
// ApplyResponse falls back to fallback_pattern).
func (o *Orchestrator) repairRetry(ctx context.Context, results []turnResult, round int, repairPromptFor func(id jam.AgentID, reason string) string) []turnResult {
	var retryIdx []int
	var retryIDs []jam.AgentID
	reasons := make(map[jam.AgentID]string)

	for i, r := range results {
		if r.dropped {
			continue
		}
		if reason, rejected := rejectionReason(r.resp); rejected {
			retryIdx = append(retryIdx, i)
			retryIDs = append(retryIDs, r.id)
			reasons[r.id] = reason
		}
	}
	if len(retryIDs) == 0 {
		return results
	}

	retryResults := o.dispatch(ctx, retryIDs, round, jam.TurnDirective, func(id jam.AgentID) string {
		return repairPromptFor(id, reasons[id])
	})
	for j, idx := range retryIdx {
		rr := retryResults[j]
		if reason, rejected := rejectionReason(rr.resp); rejected {
			// Only a genuine validation rejection is an error the boss
			// hears about; a null retry (timeout, parse failure) falls
			// back to the previous pattern silently.
			if rr.resp != nil {
				o.publishDirectiveError(fmt.Sprintf("%s: %s", displayName(rr.id), reason), rr.id, true)
			}
			results[idx].resp = nil
			continue
		}
		results[idx] = rr
	}
	return results
}

// rejectionReason reports whether a response would be rejected by
// ApplyResponse's pattern validation, and why.
func rejectionReason(resp *jam.Response) (string, bool) {
	if resp == nil {
		return "no response", true
	}
	if resp.Pattern == jam.PatternSilence || resp.Pattern == jam.PatternNoChange {
		return "", false
	}
	if err := pattern.Validate(resp.Pattern); err != nil {
		return err.Error(), true
	}
	return "", false
}

// applyResults folds every dispatch result into session state via the
// shared apply path, emits the resulting per-agent thought/commentary/
// status broadcasts, and returns the accepted decisions for aggregation.
func (o *Orchestrator) applyResults(results []turnResult, source jam.TurnSource, target jam.AgentID, hasTarget bool, round int, autoTick bool) map[jam.AgentID]*jam.Decision {
	s := o.session
	decisions := make(map[jam.AgentID]*jam.Decision)
	o.lastChanged = nil

	for _, r := range results {
		resp := r.resp
		if reason, rejected := rejectionReason(resp); rejected && resp != nil {
			if source == jam.TurnDirective {
				o.publishDirectiveError(fmt.Sprintf("%s: %s", displayName(r.id), reason), r.id, true)
			}
			resp = nil
		}

		before := ""
		if a := s.Agent(r.id); a != nil {
			before = a.CurrentPattern
		}

		s.ApplyResponse(r.id, resp, autoTick)
		a := s.Agent(r.id)
		if a == nil {
			continue
		}
		if s.IsMuted(r.id) {
			a.Status = jam.StatusMuted
		}
		if a.CurrentPattern != before {
			o.lastChanged = append(o.lastChanged, r.id)
		}
		if a.LastDecision != nil {
			decisions[r.id] = a.LastDecision
		}

		targeted := source == jam.TurnDirective && hasTarget && r.id == target
		var commentary, thoughts string
		if resp != nil {
			commentary, thoughts = resp.Commentary, resp.Thoughts
		}
		o.publishThought(r.id)
		if text, emitted := s.ApplyCommentary(r.id, commentary, thoughts, targeted, autoTick, round); emitted {
			o.publishCommentary(r.id, text)
		}
		o.publishStatus(r.id)
	}
	return decisions
}

func displayName(id jam.AgentID) string {
	meta, ok := jam.Meta(id)
	if !ok {
		return string(id)
	}
	return meta.DisplayName
}

func (o *Orchestrator) publishThought(id jam.AgentID) {
	if o.session.Stopped() {
		return
	}
	a := o.session.Agent(id)
	if a == nil {
		return
	}
	meta, _ := jam.Meta(id)
	o.hub.Publish(broadcast.Event{Type: broadcast.TypeAgentThought, Payload: broadcast.AgentThoughtPayload{
		Agent: id, Emoji: meta.Emoji, Thought: a.Thoughts, Pattern: a.CurrentPattern,
		Timestamp: o.clk.Now().UnixMilli(),
	}})
}

func (o *Orchestrator) publishCommentary(id jam.AgentID, text string) {
	if o.session.Stopped() {
		return
	}
	meta, _ := jam.Meta(id)
	o.hub.Publish(broadcast.Event{Type: broadcast.TypeAgentCommentary, Payload: broadcast.AgentCommentaryPayload{
		Agent: id, Emoji: meta.Emoji, Text: text, Timestamp: o.clk.Now().UnixMilli(),
	}})
}

func (o *Orchestrator) publishStatus(id jam.AgentID) {
	if o.session.Stopped() {
		return
	}
	a := o.session.Agent(id)
	if a == nil {
		return
	}
	o.hub.Publish(broadcast.Event{Type: broadcast.TypeAgentStatus, Payload: broadcast.AgentStatusPayload{Agent: id, Status: a.Status}})
}

func (o *Orchestrator) publishDirectiveError(message string, target jam.AgentID, hasTarget bool) {
	if o.session != nil && o.session.Stopped() {
		return
	}
	payload := broadcast.DirectiveErrorPayload{Message: message}
	if hasTarget {
		payload.TargetAgent = target
	}
	o.hub.Publish(broadcast.Event{Type: broadcast.TypeDirectiveError, Payload: payload})
	logger.Warn("orchestrator: directive_error", logger.Fields{"message": message})
}

// broadcastState composes the combined pattern and emits the closing
// musical_context_update/execute/jam_state_update batch. It checks Stopped
// first, so a turn that runs after Stop has set the flag (one that was still
// queued) publishes nothing. Stop cannot set the flag while a turn runs,
// because the turn holds o.mu until it returns.
func (o *Orchestrator) broadcastState(source jam.TurnSource) {
	s := o.session
	if s.Stopped() {
		return
	}

	o.hub.Publish(broadcast.Event{Type: broadcast.TypeMusicalContextUpdate, Payload: broadcast.MusicalContextUpdatePayload{
		MusicalContext: s.Context,
	}})

	composite := s.CompositeProgram()
	changed := o.lastChanged
	o.lastChanged = nil
	o.hub.Publish(broadcast.Event{Type: broadcast.TypeExecute, Payload: broadcast.ExecutePayload{
		Code:          composite,
		SessionID:     s.SessionID,
		Round:         s.RoundNumber,
		TurnSource:    string(source),
		ChangedAgents: changed,
		Changed:       len(changed) > 0,
		IssuedAtMs:    o.clk.Now().UnixMilli(),
	}})

	o.hub.Publish(broadcast.Event{Type: broadcast.TypeJamStateUpdate, Payload: broadcast.JamStateUpdatePayload{
		JamState:        s.Snapshot(),
		CombinedPattern: composite,
		TurnSource:      string(source),
	}})
}
