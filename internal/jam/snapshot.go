package jam

import "time"

// AgentSnapshot is the read-only view of one agent's state handed to the
// broadcast layer.
type AgentSnapshot struct {
	ID             AgentID
	DisplayName    string
	Emoji          string
	CurrentPattern string
	Thoughts       string
	Status         AgentStatus
	LastUpdated    time.Time
	Activated      bool
	Muted          bool
}

// Snapshot is the immutable deep copy of a Session observed by every
// consumer outside the scheduler goroutine: the broadcast hub, the API
// command handlers, and tests.
type Snapshot struct {
	SessionID   string
	RoundNumber int
	Context     MusicalContext
	Mode        JamStartMode
	PresetSet   bool
	Stopped     bool
	Agents      []AgentSnapshot
	Composite   string
}

// Snapshot deep-copies the session's externally visible state. It never
// exposes the internal clock, subprocess handles, or commentary runtime,
// since none of those are meaningful outside the scheduler goroutine.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:   s.SessionID,
		RoundNumber: s.RoundNumber,
		Context:     s.Context,
		Mode:        s.Mode,
		PresetSet:   s.PresetSet,
		Stopped:     s.stopped,
		Composite:   s.CompositeProgram(),
	}
	snap.Context.Scale = append([]string(nil), s.Context.Scale...)
	snap.Context.ChordProgression = append([]string(nil), s.Context.ChordProgression...)

	for _, id := range AllAgentIDs {
		a := s.agents[id]
		if a == nil {
			continue
		}
		meta, _ := Meta(id)
		snap.Agents = append(snap.Agents, AgentSnapshot{
			ID:             id,
			DisplayName:    meta.DisplayName,
			Emoji:          meta.Emoji,
			CurrentPattern: a.CurrentPattern,
			Thoughts:       a.Thoughts,
			Status:         a.Status,
			LastUpdated:    a.LastUpdated,
			Activated:      s.IsActivated(id),
			Muted:          s.muted[id],
		})
	}
	return snap
}
