package jam

import (
	"github.com/Conceptual-Machines/jamctl/internal/pattern"
)

// ApplyResponse folds one agent's accepted response into its Agent state.
// It is the single shared path every dispatching turn kind (jam_start,
// directive, auto_tick) routes a response through, so pattern
// validation and the silence/no_change rules only live in one place.
// autoTick selects the silence-coercion rule, which only applies
// on auto-tick turns.
func (s *Session) ApplyResponse(id AgentID, resp *Response, autoTick bool) {
	a := s.agents[id]
	if a == nil {
		return
	}
	a.LastUpdated = s.clk.Now()
	hadNonSilence := a.CurrentPattern != "" && a.CurrentPattern != PatternSilence

	// Validate pattern; an unvalidatable non-sentinel pattern is
	// dropped and treated as a null response.
	if resp != nil && resp.Pattern != PatternSilence && resp.Pattern != PatternNoChange {
		if err := pattern.Validate(resp.Pattern); err != nil {
			resp = nil
		}
	}

	// Null response (timeout, parse failure, or dropped pattern).
	if resp == nil {
		a.CurrentPattern = a.FallbackPattern
		if a.CurrentPattern != "" && a.CurrentPattern != PatternSilence {
			a.Status = StatusPlaying
		} else {
			a.Status = StatusTimeout
		}
		s.resetNoChangeStreak(a)
		return
	}

	if resp.Thoughts != "" {
		a.Thoughts = resp.Thoughts
	}
	if resp.Decision != nil && !resp.Decision.IsEmpty() {
		a.LastDecision = resp.Decision
	}

	proposed := resp.Pattern

	// Silence coercion, auto-tick turns only.
	if autoTick && proposed == PatternSilence && hadNonSilence && !isDeliberateStripBack(resp.Decision) {
		proposed = PatternNoChange
	}

	switch proposed {
	case PatternNoChange:
		// no_change: keep current_pattern, coercing to silence if empty.
		if a.CurrentPattern == "" {
			a.CurrentPattern = PatternSilence
		}
		if a.CurrentPattern != PatternSilence {
			a.Status = StatusPlaying
		} else {
			a.Status = StatusIdle
		}
		if autoTick {
			s.bumpNoChangeStreak(a, hadNonSilence)
		} else {
			s.resetNoChangeStreak(a)
		}
	default:
		// Install the new pattern (including an explicit silence).
		a.CurrentPattern = proposed
		if proposed != PatternSilence {
			a.FallbackPattern = proposed
			a.Status = StatusPlaying
		} else {
			a.Status = StatusIdle
		}
		s.resetNoChangeStreak(a)
	}
}

// isDeliberateStripBack reports whether a decision's confidence/intent
// combination justifies accepting silence verbatim on an auto-tick turn
// instead of coercing it to no_change.
func isDeliberateStripBack(d *Decision) bool {
	if d == nil || d.Confidence != ConfidenceHigh || !d.HasIntent {
		return false
	}
	switch d.Intent {
	case IntentBreakdown, IntentStripBack, IntentTransition:
		return true
	default:
		return false
	}
}

// bumpNoChangeStreak maintains the auto-tick no-change counter that gates
// deferred thread compaction. It only advances when the
// agent had a non-silence pattern before this no_change turn.
func (s *Session) bumpNoChangeStreak(a *Agent, hadNonSilence bool) {
	if !hadNonSilence {
		s.resetNoChangeStreak(a)
		return
	}
	a.AutoTickNoChangeStreak++
	if a.AutoTickNoChangeStreak >= ThreadCompactionNoChangeStreak {
		a.PendingThreadCompaction = true
		a.AutoTickNoChangeStreak = 0
	}
}

func (s *Session) resetNoChangeStreak(a *Agent) {
	a.AutoTickNoChangeStreak = 0
}

// ConsumePendingThreadCompaction returns the activated agents whose deferred
// compaction flag is set and clears it. The caller is
// responsible for actually dropping each returned agent's LLM thread id.
func (s *Session) ConsumePendingThreadCompaction() []AgentID {
	var due []AgentID
	for _, id := range s.activated {
		a := s.agents[id]
		if a == nil || !a.PendingThreadCompaction {
			continue
		}
		due = append(due, id)
		a.PendingThreadCompaction = false
		a.AutoTickNoChangeStreak = 0
	}
	return due
}
