package orchestrator

import (
	"fmt"

	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/llmrunner"
	"github.com/Conceptual-Machines/jamctl/internal/scheduler"
)

// Start implements the start(activeAgents[], mode?) command: it creates a fresh
// session over the given roster, launches the scheduler, and (for
// autonomous_opening) enqueues the jam-start turn. mode defaults to
// staged_silent.
func (o *Orchestrator) Start(active []jam.AgentID, mode jam.JamStartMode) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session != nil && !o.session.Stopped() {
		return "", fmt.Errorf("orchestrator: a jam session is already running")
	}
	if mode == "" {
		mode = jam.ModeStagedSilent
	}

	sessionID := newSessionID()
	o.session = jam.NewSession(o.clk, sessionID, active, mode)
	if mode == jam.ModeAutonomousOpening {
		// Autonomous openings begin configured: the band needs a key and
		// tempo to open against. Staged-silent waits for set_jam_preset.
		o.session.SetPreset(jam.RandomPresetID(nil))
	}
	o.handles = make(map[jam.AgentID]*llmrunner.SessionHandle)
	for _, id := range active {
		o.handleFor(id)
	}

	o.sched = scheduler.New(scheduler.Config{}, o.clk, scheduler.ExecutorFunc(o.executeTurn))
	o.sched.Start()
	o.publishAutoTickTiming()

	o.sched.Enqueue(scheduler.Turn{Kind: scheduler.KindJamStart, Mode: mode})
	return sessionID, nil
}

// Stop waits for o.mu, which an in-flight turn holds for its whole run, so
// that turn finishes and broadcasts first. It then marks the session stopped,
// so turns still queued publish nothing, and stops the scheduler.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.session != nil {
		o.session.SetStopped()
	}
	sched := o.sched
	o.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
}

// SetJamPreset implements the set_jam_preset(presetId) command: enqueues a
// set_preset turn.
func (o *Orchestrator) SetJamPreset(presetID string) error {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	if sched == nil {
		return fmt.Errorf("orchestrator: no jam session is running")
	}
	if !sched.Enqueue(scheduler.Turn{Kind: scheduler.KindSetPreset, PresetID: presetID}) {
		return fmt.Errorf("orchestrator: turn queue rejected set_jam_preset (stopped or full)")
	}
	return nil
}

// HandleDirective implements the handle_directive(text, targetAgent?,
// activeAgents[]): enqueues a directive turn. target is nil for an
// untargeted directive.
func (o *Orchestrator) HandleDirective(text string, target *jam.AgentID) error {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	if sched == nil {
		return fmt.Errorf("orchestrator: no jam session is running")
	}

	turn := scheduler.Turn{Kind: scheduler.KindDirective, DirectiveText: text}
	if target != nil {
		turn.DirectiveTarget = *target
		turn.HasTarget = true
	}
	if !sched.Enqueue(turn) {
		return fmt.Errorf("orchestrator: turn queue rejected directive (stopped or full)")
	}
	return nil
}

// HandleCameraDirective admits a camera-intent directive through the same
// path as a boss directive once it clears the confidence gate.
func (o *Orchestrator) HandleCameraDirective(d jam.CameraDirective) error {
	text, ok := jam.AcceptCameraDirective(d)
	if !ok {
		return nil
	}
	return o.HandleDirective(text, nil)
}

// HandleAudioFeedback implements the handle_audio_feedback(snapshot)
// command: it installs the latest audio-feedback summary directly, since
// ingestion isn't itself a governed turn — it only changes what the next
// turn's prompt includes.
func (o *Orchestrator) HandleAudioFeedback(summary string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return
	}
	o.session.SetAudioFeedback(summary)
}

// GetJamStateSnapshot returns a deep-copied snapshot of the live session.
func (o *Orchestrator) GetJamStateSnapshot() (jam.Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return jam.Snapshot{}, fmt.Errorf("orchestrator: no jam session is running")
	}
	return o.session.Snapshot(), nil
}
