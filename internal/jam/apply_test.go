package jam

import (
	"testing"
	"time"

	"github.com/Conceptual-Machines/jamctl/internal/clock"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewSession(clk, "sess-1", AllAgentIDs, ModeAutonomousOpening)
	s.SetPreset("lofi-chill")
	return s
}

func TestApplyResponse_InstallsValidPattern(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Drums, &Response{Pattern: `s("bd sd").gain(0.8)`}, false)

	a := s.Agent(Drums)
	if a.CurrentPattern != `s("bd sd").gain(0.8)` {
		t.Errorf("pattern not installed: %q", a.CurrentPattern)
	}
	if a.Status != StatusPlaying {
		t.Errorf("status = %v, want playing", a.Status)
	}
	if a.FallbackPattern != a.CurrentPattern {
		t.Error("fallback pattern should track the newly installed pattern")
	}
}

func TestApplyResponse_InvalidPatternTreatedAsNull(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Bass, &Response{Pattern: `s("bd sd").gain(0.8)`}, false)
	s.ApplyResponse(Bass, &Response{Pattern: `s("bd [sd)")`}, false)

	a := s.Agent(Bass)
	if a.CurrentPattern != `s("bd sd").gain(0.8)` {
		t.Errorf("fallback pattern lost: %q", a.CurrentPattern)
	}
	if a.Status != StatusPlaying {
		t.Errorf("status = %v, want playing (non-silence fallback)", a.Status)
	}
}

func TestApplyResponse_NoChangeKeepsCurrentPattern(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Melody, &Response{Pattern: `s("piano c e g")`}, false)
	s.ApplyResponse(Melody, &Response{Pattern: PatternNoChange, Thoughts: "still grooving"}, false)

	a := s.Agent(Melody)
	if a.CurrentPattern != `s("piano c e g")` {
		t.Errorf("no_change should keep current pattern, got %q", a.CurrentPattern)
	}
	if a.Thoughts != "still grooving" {
		t.Errorf("thoughts not updated: %q", a.Thoughts)
	}
}

func TestApplyResponse_AutoTickNoChangeStreakTriggersCompaction(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Melody, &Response{Pattern: `s("piano c e g")`}, false)
	for i := 0; i < ThreadCompactionNoChangeStreak; i++ {
		s.ApplyResponse(Melody, &Response{Pattern: PatternNoChange}, true)
	}
	a := s.Agent(Melody)
	if !a.PendingThreadCompaction {
		t.Error("expected deferred thread compaction after streak threshold")
	}
}

func TestApplyResponse_AutoTickSilenceCoercedToNoChange(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Chords, &Response{Pattern: `s("cmaj")`}, false)
	s.ApplyResponse(Chords, &Response{Pattern: PatternSilence}, true)

	a := s.Agent(Chords)
	if a.CurrentPattern != `s("cmaj")` {
		t.Errorf("auto-tick silence should have been coerced to no_change, got %q", a.CurrentPattern)
	}
}

func TestApplyResponse_DeliberateStripBackSilenceAccepted(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Chords, &Response{Pattern: `s("cmaj")`}, false)
	s.ApplyResponse(Chords, &Response{
		Pattern: PatternSilence,
		Decision: &Decision{
			Confidence: ConfidenceHigh,
			HasIntent:  true,
			Intent:     IntentStripBack,
		},
	}, true)

	a := s.Agent(Chords)
	if a.CurrentPattern != PatternSilence {
		t.Errorf("deliberate strip-back silence should be accepted, got %q", a.CurrentPattern)
	}
	if a.Status != StatusIdle {
		t.Errorf("status = %v, want idle", a.Status)
	}
}

func TestApplyResponse_ExplicitSilenceIdlesAgent(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Drums, &Response{Pattern: PatternSilence}, false)

	a := s.Agent(Drums)
	if a.CurrentPattern != PatternSilence || a.Status != StatusIdle {
		t.Errorf("expected silenced/idle agent, got pattern=%q status=%v", a.CurrentPattern, a.Status)
	}
}

func TestApplyResponse_NullResponseFallsBackAndMarksTimeout(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Bass, nil, true)

	a := s.Agent(Bass)
	if a.CurrentPattern != "" {
		t.Errorf("expected no fallback pattern for a fresh agent, got %q", a.CurrentPattern)
	}
	if a.Status != StatusTimeout {
		t.Errorf("status = %v, want timeout", a.Status)
	}
}

func TestApplyResponse_NullResponseFallsBackToLastGoodPattern(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Bass, &Response{Pattern: `s("bd sd")`}, false)
	s.ApplyResponse(Bass, nil, true)

	a := s.Agent(Bass)
	if a.CurrentPattern != `s("bd sd")` {
		t.Errorf("null response should fall back to last good pattern, got %q", a.CurrentPattern)
	}
	if a.Status != StatusPlaying {
		t.Errorf("status = %v, want playing", a.Status)
	}
}

func TestConsumePendingThreadCompaction(t *testing.T) {
	s := newTestSession(t)
	s.ApplyResponse(Drums, &Response{Pattern: `s("bd sd")`}, false)
	for i := 0; i < ThreadCompactionNoChangeStreak; i++ {
		s.ApplyResponse(Drums, &Response{Pattern: PatternNoChange}, true)
	}
	due := s.ConsumePendingThreadCompaction()
	if len(due) != 1 || due[0] != Drums {
		t.Fatalf("expected [drums] due for compaction, got %v", due)
	}
	if s.Agent(Drums).PendingThreadCompaction {
		t.Error("flag should be cleared after consuming")
	}
	if len(s.ConsumePendingThreadCompaction()) != 0 {
		t.Error("second consume should return nothing")
	}
}
