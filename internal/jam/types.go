// Package jam owns the authoritative musical session state and the
// governance rules that mutate it. Every mutation runs
// on the Turn Scheduler's single goroutine; everything else — broadcast,
// the API layer, tests — observes a Session only through Snapshot.
package jam

import (
	"time"

	"github.com/Conceptual-Machines/jamctl/internal/clock"
)

// AgentID is the fixed short identifier for one of the four band roles.
type AgentID string

const (
	Drums  AgentID = "drums"
	Bass   AgentID = "bass"
	Melody AgentID = "melody"
	Chords AgentID = "chords"
)

// AllAgentIDs is the full roster in band-state display order.
var AllAgentIDs = []AgentID{Drums, Bass, Melody, Chords}

// AgentMeta is the static per-role metadata that never changes after boot.
type AgentMeta struct {
	DisplayName string
	Emoji       string
}

var agentMeta = map[AgentID]AgentMeta{
	Drums:  {DisplayName: "Drums", Emoji: "🥁"},
	Bass:   {DisplayName: "Bass", Emoji: "🎸"},
	Melody: {DisplayName: "Melody", Emoji: "🎹"},
	Chords: {DisplayName: "Chords", Emoji: "🎻"},
}

// Meta returns the static display metadata for an agent id. Callers that
// pass a ok=false are targeting an id outside the fixed roster.
func Meta(id AgentID) (AgentMeta, bool) {
	m, ok := agentMeta[id]
	return m, ok
}

// AgentStatus is one of the states in the per-agent status machine.
type AgentStatus string

const (
	StatusIdle     AgentStatus = "idle"
	StatusThinking AgentStatus = "thinking"
	StatusPlaying  AgentStatus = "playing"
	StatusMuted    AgentStatus = "muted"
	StatusError    AgentStatus = "error"
	StatusTimeout  AgentStatus = "timeout"
)

// TurnSource identifies what kind of turn produced a state transition.
type TurnSource string

const (
	TurnJamStart  TurnSource = "jam_start"
	TurnDirective TurnSource = "directive"
	TurnAutoTick  TurnSource = "auto_tick"
	TurnSetPreset TurnSource = "set_preset"
)

// JamStartMode is the session's opening behavior.
type JamStartMode string

const (
	ModeAutonomousOpening JamStartMode = "autonomous_opening"
	ModeStagedSilent      JamStartMode = "staged_silent"
)

// Confidence is a decision's self-reported reliability.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ArrangementIntent is the closed intent enum, after canonicalization.
type ArrangementIntent string

const (
	IntentBuild        ArrangementIntent = "build"
	IntentBreakdown    ArrangementIntent = "breakdown"
	IntentDrop         ArrangementIntent = "drop"
	IntentStripBack    ArrangementIntent = "strip_back"
	IntentBringForward ArrangementIntent = "bring_forward"
	IntentHold         ArrangementIntent = "hold"
	IntentNoChange     ArrangementIntent = "no_change"
	IntentTransition   ArrangementIntent = "transition"
)

// PatternSilence and PatternNoChange are the two sentinel pattern values a
// response may carry instead of a DSL expression.
const (
	PatternSilence  = "silence"
	PatternNoChange = "no_change"
)

// MusicalContext is the session-wide musical state.
type MusicalContext struct {
	Genre            string
	Key              string
	Scale            []string
	ChordProgression []string
	BPM              int
	TimeSignature    string
	Energy           int
}

// Decision is the structured per-response steering record. Every field is the
// zero value when absent; TempoDeltaPct/EnergyDelta/Intent/SuggestedKey are
// only meaningful when their Has* companion is true, since 0/"" are
// themselves valid deltas and a missing decision is distinct from a decision
// whose fields all happened to validate away. SuggestedChords has no Has*
// companion: an empty slice means no suggestion.
type Decision struct {
	HasTempoDelta bool
	TempoDeltaPct float64

	HasEnergyDelta bool
	EnergyDelta    int

	HasIntent bool
	Intent    ArrangementIntent

	Confidence Confidence

	HasSuggestedKey bool
	SuggestedKey    string

	SuggestedChords []string
}

// IsEmpty reports whether every optional field failed validation, meaning
// the decision as a whole should be treated as absent.
func (d *Decision) IsEmpty() bool {
	if d == nil {
		return true
	}
	return !d.HasTempoDelta && !d.HasEnergyDelta && !d.HasIntent &&
		!d.HasSuggestedKey && len(d.SuggestedChords) == 0
}

// Response is a parsed, shape-validated agent turn result.
type Response struct {
	Pattern    string
	Thoughts   string
	Commentary string
	Decision   *Decision
}

// commentaryRuntime is the agent's per-round commentary dedupe state.
type commentaryRuntime struct {
	hasEmitted       bool
	lastEmittedRound int
	recentSignatures []string
}

// Agent is the mutable per-agent session state.
type Agent struct {
	ID AgentID

	CurrentPattern  string
	FallbackPattern string
	Thoughts        string
	Status          AgentStatus
	LastUpdated     time.Time

	commentary commentaryRuntime

	AutoTickNoChangeStreak  int
	PendingThreadCompaction bool

	LastDecision *Decision
}

func newAgent(id AgentID, now time.Time) *Agent {
	return &Agent{
		ID:          id,
		Status:      StatusIdle,
		LastUpdated: now,
	}
}

// AudioFeedback is the latest ingested audio-feedback sample.
type AudioFeedback struct {
	Summary    string
	CapturedAt time.Time
}

// CameraDirective is a machine directive produced by the camera-intent
// interpreter, gated on its confidence.
type CameraDirective struct {
	Text       string
	Confidence float64
}

// Session is the root aggregate, owned exclusively by the scheduler
// goroutine. It is never read concurrently with a mutation; broadcast and
// API layers see only the deep copies returned by Snapshot.
type Session struct {
	clk clock.Clock

	SessionID   string
	RoundNumber int
	Context     MusicalContext
	Mode        JamStartMode
	PresetSet   bool

	active    map[AgentID]bool
	activated []AgentID // ordered, first-activation order
	muted     map[AgentID]bool

	agents map[AgentID]*Agent

	audio *AudioFeedback

	stopped bool
}

// NewSession creates a session over the given active roster.
func NewSession(clk clock.Clock, sessionID string, active []AgentID, mode JamStartMode) *Session {
	now := clk.Now()
	s := &Session{
		clk:       clk,
		SessionID: sessionID,
		Mode:      mode,
		active:    make(map[AgentID]bool, len(active)),
		muted:     make(map[AgentID]bool),
		agents:    make(map[AgentID]*Agent, len(active)),
	}
	for _, id := range active {
		s.active[id] = true
		s.agents[id] = newAgent(id, now)
	}
	if mode == ModeAutonomousOpening {
		// Autonomous opening activates every active agent up front; the
		// jam-start turn itself still has to run before any of them gets
		// a real pattern, but they count as activated immediately.
		for _, id := range active {
			s.activated = append(s.activated, id)
		}
	}
	return s
}

// IsActive reports whether id is part of the session's persona roster.
func (s *Session) IsActive(id AgentID) bool { return s.active[id] }

// IsActivated reports whether id has taken at least one turn (or is in
// autonomous-opening mode, where activation happens up front).
func (s *Session) IsActivated(id AgentID) bool {
	for _, a := range s.activated {
		if a == id {
			return true
		}
	}
	return false
}

// IsMuted reports whether id is currently in the muted set.
func (s *Session) IsMuted(id AgentID) bool { return s.muted[id] }

// Agent returns the mutable agent record, or nil if id isn't active.
func (s *Session) Agent(id AgentID) *Agent { return s.agents[id] }

// Activate adds id to the activated set if it isn't already there.
func (s *Session) Activate(id AgentID) {
	if s.IsActivated(id) {
		return
	}
	s.activated = append(s.activated, id)
}

// Mute adds id to the muted set.
func (s *Session) Mute(id AgentID) { s.muted[id] = true }

// Unmute removes id from the muted set and clears its deferred thread
// compaction.
func (s *Session) Unmute(id AgentID) {
	delete(s.muted, id)
	if a := s.agents[id]; a != nil {
		a.PendingThreadCompaction = false
		a.AutoTickNoChangeStreak = 0
	}
}

// ActivatedUnmuted returns activated, unmuted agent ids with a live session
// handle, in activation order. liveSession reports whether an agent id still
// has a usable subprocess handle (false once it's been dropped after a
// non-retryable subprocess failure).
func (s *Session) ActivatedUnmuted(liveSession func(AgentID) bool) []AgentID {
	out := make([]AgentID, 0, len(s.activated))
	for _, id := range s.activated {
		if s.muted[id] {
			continue
		}
		if liveSession != nil && !liveSession(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

// NextRound advances the round counter exactly once and returns the new
// value.
func (s *Session) NextRound() int {
	s.RoundNumber++
	return s.RoundNumber
}

// SetStopped marks the session stopped; the orchestrator's broadcast helpers
// consult this first, so a turn that runs after the flag is set publishes
// nothing.
func (s *Session) SetStopped() { s.stopped = true }

// Stopped reports whether the session has been stopped.
func (s *Session) Stopped() bool { return s.stopped }

// SetAudioFeedback installs the latest audio feedback sample
// handle_audio_feedback.
func (s *Session) SetAudioFeedback(summary string) {
	s.audio = &AudioFeedback{Summary: summary, CapturedAt: s.clk.Now()}
}

// AudioFeedbackSummary returns the current sample's summary if it is still
// within AudioFeedbackTTL, and false otherwise.
func (s *Session) AudioFeedbackSummary() (string, bool) {
	if s.audio == nil {
		return "", false
	}
	if s.clk.Now().Sub(s.audio.CapturedAt) > AudioFeedbackTTL {
		return "", false
	}
	return s.audio.Summary, true
}

// DropAgentSession marks an agent's subprocess session gone after a
// non-retryable subprocess failure. The agent stays in
// the active roster — it still exists as a persona, it just has no live
// session handle — so directive targeting can still tell apart "not in this jam
// session" (not active) from "<name>'s process is unavailable" (active, no
// handle, via the caller's liveSession predicate). It also drops out of
// ActivatedUnmuted via that same predicate.
func (s *Session) DropAgentSession(id AgentID) {
	if a := s.agents[id]; a != nil {
		a.Status = StatusError
	}
}
