package broadcast

import (
	"github.com/Conceptual-Machines/jamctl/internal/jam"
)

// Event type names on the push channel.
const (
	TypeJamStateUpdate       = "jam_state_update"
	TypeAgentThought         = "agent_thought"
	TypeAgentCommentary      = "agent_commentary"
	TypeAgentStatus          = "agent_status"
	TypeMusicalContextUpdate = "musical_context_update"
	TypeExecute              = "execute"
	TypeDirectiveError       = "directive_error"
	TypeAutoTickTimingUpdate = "auto_tick_timing_update"
	TypeAutoTickFired        = "auto_tick_fired"
)

type JamStateUpdatePayload struct {
	JamState        jam.Snapshot `json:"jamState"`
	CombinedPattern string       `json:"combinedPattern"`
	TurnSource      string       `json:"turnSource,omitempty"`
}

type AgentThoughtPayload struct {
	Agent     jam.AgentID `json:"agent"`
	Emoji     string      `json:"emoji"`
	Thought   string      `json:"thought"`
	Pattern   string      `json:"pattern"`
	Timestamp int64       `json:"timestamp"`
}

type AgentCommentaryPayload struct {
	Agent     jam.AgentID `json:"agent"`
	Emoji     string      `json:"emoji"`
	Text      string      `json:"text"`
	Timestamp int64       `json:"timestamp"`
}

type AgentStatusPayload struct {
	Agent  jam.AgentID     `json:"agent"`
	Status jam.AgentStatus `json:"status"`
}

type MusicalContextUpdatePayload struct {
	MusicalContext jam.MusicalContext `json:"musicalContext"`
}

type ExecutePayload struct {
	Code          string        `json:"code"`
	SessionID     string        `json:"sessionId"`
	Round         int           `json:"round"`
	TurnSource    string        `json:"turnSource"`
	ChangedAgents []jam.AgentID `json:"changedAgents"`
	Changed       bool          `json:"changed"`
	IssuedAtMs    int64         `json:"issuedAtMs"`
}

type DirectiveErrorPayload struct {
	Message     string      `json:"message"`
	TargetAgent jam.AgentID `json:"targetAgent,omitempty"`
}

type AutoTickInfo struct {
	IntervalMs   int64 `json:"intervalMs"`
	NextTickAtMs int64 `json:"nextTickAtMs"`
	ServerNowMs  int64 `json:"serverNowMs"`
}

type AutoTickTimingUpdatePayload struct {
	AutoTick AutoTickInfo `json:"autoTick"`
}

type AutoTickFiredPayload struct {
	SessionID    string        `json:"sessionId"`
	Round        int           `json:"round"`
	ActiveAgents []jam.AgentID `json:"activeAgents"`
	AutoTick     AutoTickInfo  `json:"autoTick"`
	FiredAtMs    int64         `json:"firedAtMs"`
}
