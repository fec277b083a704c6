package jam

import (
	"strings"
	"testing"
	"time"

	"github.com/Conceptual-Machines/jamctl/internal/clock"
)

func newCommentarySession(t *testing.T) *Session {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewSession(clk, "sess-1", AllAgentIDs, ModeAutonomousOpening)
}

func TestApplyCommentary_Truncates(t *testing.T) {
	s := newCommentarySession(t)
	long := strings.Repeat("a", CommentaryMaxChars+50)
	text, emitted := s.ApplyCommentary(Drums, long, "", true, false, 1)
	if !emitted {
		t.Fatal("expected emission")
	}
	if len([]rune(text)) != CommentaryMaxChars {
		t.Errorf("len = %d, want %d", len([]rune(text)), CommentaryMaxChars)
	}
}

func TestApplyCommentary_TargetedAlwaysEmits(t *testing.T) {
	s := newCommentarySession(t)
	_, emitted := s.ApplyCommentary(Bass, "locking in a deep groove", "", true, false, 1)
	if !emitted {
		t.Fatal("targeted commentary must always emit")
	}
	// Immediately repeating the same targeted commentary still emits, since
	// targeted turns bypass the dedupe/cooldown rules entirely.
	_, emitted = s.ApplyCommentary(Bass, "locking in a deep groove", "", true, false, 1)
	if !emitted {
		t.Error("targeted commentary should bypass dedupe")
	}
}

func TestApplyCommentary_TargetedFallsBackToThoughtsThenConstant(t *testing.T) {
	s := newCommentarySession(t)
	text, emitted := s.ApplyCommentary(Melody, "", "floating a new idea", true, false, 1)
	if !emitted || text != "floating a new idea" {
		t.Errorf("expected fallback to thoughts, got %q emitted=%v", text, emitted)
	}

	text, emitted = s.ApplyCommentary(Chords, "", "", true, false, 1)
	if !emitted || text != guaranteedCommentaryFallback {
		t.Errorf("expected constant fallback, got %q emitted=%v", text, emitted)
	}
}

func TestApplyCommentary_AutoTickDuplicateSuppressed(t *testing.T) {
	s := newCommentarySession(t)
	s.ApplyCommentary(Melody, "floating over the top", "", false, true, 1)
	_, emitted := s.ApplyCommentary(Melody, "Floating over the top!", "", false, true, 10)
	if emitted {
		t.Error("normalized-duplicate commentary should be suppressed")
	}
}

func TestApplyCommentary_SuppressedWhenMatchesThoughts(t *testing.T) {
	s := newCommentarySession(t)
	_, emitted := s.ApplyCommentary(Drums, "locking in the groove", "Locking in the groove!", false, true, 1)
	if emitted {
		t.Error("commentary matching thoughts signature should be suppressed")
	}
}

func TestApplyCommentary_AutoTickCooldown(t *testing.T) {
	s := newCommentarySession(t)
	s.ApplyCommentary(Chords, "holding down the changes", "", false, true, 1)
	_, emitted := s.ApplyCommentary(Chords, "a brand new different line here", "", false, true, 1)
	if emitted {
		t.Error("auto-tick commentary within cooldown window should be suppressed")
	}
	_, emitted = s.ApplyCommentary(Chords, "a brand new different line here", "", false, true, 1+CommentaryAutoTickMinRounds)
	if !emitted {
		t.Error("auto-tick commentary past cooldown window should emit")
	}
}

func TestApplyCommentary_EmptyNeverEmitsWhenNotTargeted(t *testing.T) {
	s := newCommentarySession(t)
	_, emitted := s.ApplyCommentary(Drums, "   ", "", false, true, 1)
	if emitted {
		t.Error("blank commentary should never emit on its own initiative")
	}
}
