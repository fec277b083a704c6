// Package orchestrator wires the session state (internal/jam), the LLM
// subprocess runner (internal/llmrunner), the prompt builder
// (internal/promptbuilder), the turn scheduler (internal/scheduler), and the
// broadcast fan-out (internal/broadcast) into the jam-start, directive,
// and auto-tick turn kinds and the client command surface.
package orchestrator

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/Conceptual-Machines/jamctl/internal/broadcast"
	"github.com/Conceptual-Machines/jamctl/internal/clock"
	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/llmrunner"
	"github.com/Conceptual-Machines/jamctl/internal/metrics"
	"github.com/Conceptual-Machines/jamctl/internal/promptbuilder"
	"github.com/Conceptual-Machines/jamctl/internal/scheduler"
	"github.com/Conceptual-Machines/jamctl/pkg/personas"
)

// explicitMuteRe matches the explicit mute verbs. unmuteRe excludes
// a directive that merely contains "unmute" from being treated as a mute.
var (
	explicitMuteRe = regexp.MustCompile(`(?i)\bmute\b|\bgo silent\b|\bstop playing\b|\bdrop out\b|\blay out\b|\bsit out\b`)
	unmuteRe       = regexp.MustCompile(`(?i)\bunmute\b`)
)

// Orchestrator is the single owner of one jam session's mutable state. The
// fields above mu are read-only after New, except sched, which Start sets for
// each session. session, handles and lastChanged are only ever touched under
// mu: by executeTurn, which holds it for a whole turn, or by the handful of
// commands that must be answered synchronously.
type Orchestrator struct {
	clk    clock.Clock
	runner *llmrunner.Runner
	hub    *broadcast.Hub
	sched  *scheduler.Scheduler

	personas     map[jam.AgentID]personas.Persona
	policy       string
	dslRef       string
	genre        string
	defaultModel string
	metrics      *metrics.Client

	mu      sync.Mutex
	session *jam.Session
	handles map[jam.AgentID]*llmrunner.SessionHandle

	// lastChanged is the set of agents whose pattern actually changed in the
	// turn that just ran applyResults, consumed once by the following
	// broadcastState call for the execute payload's changedAgents/changed.
	lastChanged []jam.AgentID
}

// New loads every persona/policy/DSL-reference file once — they are
// immutable for the process lifetime — and builds an Orchestrator with
// no session yet; Start creates one.
func New(clk clock.Clock, runner *llmrunner.Runner, hub *broadcast.Hub, metricsClient *metrics.Client, genre, defaultModel string) (*Orchestrator, error) {
	policy, err := personas.SharedPolicy()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load policy: %w", err)
	}
	dslRef, err := personas.DSLReference()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load dsl reference: %w", err)
	}

	loaded := make(map[jam.AgentID]personas.Persona, len(jam.AllAgentIDs))
	for _, id := range jam.AllAgentIDs {
		p, err := personas.Load(string(id))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: load persona %q: %w", id, err)
		}
		loaded[id] = p
	}

	o := &Orchestrator{
		clk:          clk,
		runner:       runner,
		hub:          hub,
		personas:     loaded,
		policy:       policy,
		dslRef:       dslRef,
		genre:        genre,
		defaultModel: defaultModel,
		metrics:      metricsClient,
		handles:      make(map[jam.AgentID]*llmrunner.SessionHandle),
	}
	return o, nil
}

// Scheduler exposes the current session's turn scheduler. It is nil until
// Start builds and starts one.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.sched }

// modelFor resolves the per-agent model: the persona's frontmatter override
// if present, else the configured default.
func (o *Orchestrator) modelFor(id jam.AgentID) string {
	if p, ok := o.personas[id]; ok && p.Model != "" {
		return p.Model
	}
	return o.defaultModel
}

// systemPromptFor builds one agent's persona system prompt.
func (o *Orchestrator) systemPromptFor(id jam.AgentID) string {
	return promptbuilder.SystemPrompt(o.personas[id], o.policy, o.dslRef, o.genre)
}

// handleFor returns (creating if absent) an agent's SessionHandle, the
// runner-owned process/thread plumbing joined to the session's Agent by id.
func (o *Orchestrator) handleFor(id jam.AgentID) *llmrunner.SessionHandle {
	h, ok := o.handles[id]
	if !ok {
		h = &llmrunner.SessionHandle{
			Agent:        id,
			SystemPrompt: o.systemPromptFor(id),
			Model:        o.modelFor(id),
		}
		o.handles[id] = h
	}
	return h
}

// liveSession reports whether id still has a usable subprocess handle,
// i.e. hasn't been dropped by DropAgentSession after a non-retryable
// subprocess failure.
func (o *Orchestrator) liveSession(id jam.AgentID) bool {
	_, ok := o.handles[id]
	return ok
}

// dropHandle removes a dropped agent's handle so future dispatch and
// targeting treat it as having no live session.
func (o *Orchestrator) dropHandle(id jam.AgentID) {
	delete(o.handles, id)
}

// sessionID returns the current session's id, or "" if none exists yet.
func (o *Orchestrator) sessionID() string {
	if o.session == nil {
		return ""
	}
	return o.session.SessionID
}

// newSessionID generates a fresh session identifier.
func newSessionID() string { return uuid.NewString() }

func isExplicitMute(text string) bool {
	return explicitMuteRe.MatchString(text) && !unmuteRe.MatchString(text)
}
