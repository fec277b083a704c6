package jam

import (
	"strings"

	"github.com/Conceptual-Machines/jamctl/internal/musicctx"
)

// AggregateDirective folds every responding agent's decision into one
// tempo/energy delta for a directive turn: each agent's
// delta is weighted by its own confidence multiplier and the weighted
// average is applied once to the shared musical context. Directive turns
// touch tempo and energy only; key and chord suggestions are picked up on
// auto-tick turns.
func (s *Session) AggregateDirective(decisions map[AgentID]*Decision) {
	s.applyWeightedDeltas(decisions, 1.0)
}

// AggregateAutoTick folds decisions from an unprompted tick the same way,
// but damps the combined delta by AutoTickDampening so the band drifts
// rather than lurches between ticks.
func (s *Session) AggregateAutoTick(decisions map[AgentID]*Decision) {
	s.applyWeightedDeltas(decisions, AutoTickDampening)
	s.applyContextSuggestions(decisions)
}

func (s *Session) applyWeightedDeltas(decisions map[AgentID]*Decision, dampening float64) {
	var tempoSum, tempoWeight float64
	var energySum, energyWeight float64

	for _, d := range decisions {
		if d == nil {
			continue
		}
		w := ConfidenceMultiplier[d.Confidence]
		if w == 0 {
			continue
		}
		if d.HasTempoDelta {
			tempoSum += clampFloat(d.TempoDeltaPct, TempoDeltaPctMin, TempoDeltaPctMax) * w
			tempoWeight += w
		}
		if d.HasEnergyDelta {
			energySum += float64(clampInt(d.EnergyDelta, EnergyDeltaMin, EnergyDeltaMax)) * w
			energyWeight += w
		}
	}

	if tempoWeight > 0 {
		avg := (tempoSum / tempoWeight) * dampening
		delta := roundHalfAwayFromZero(float64(s.Context.BPM) * avg / 100.0)
		s.Context.BPM = clampInt(s.Context.BPM+delta, BPMMin, BPMMax)
	}
	if energyWeight > 0 {
		avg := (energySum / energyWeight) * dampening
		s.Context.Energy = clampInt(s.Context.Energy+roundHalfAwayFromZero(avg), EnergyMin, EnergyMax)
	}
}

// applyContextSuggestions handles the key-change-consensus and chord-only
// suggestion paths for auto-tick turns. A key change only lands when at least
// KeyConsensusMinAgents high-confidence decisions suggested the same
// normalized key (root plus quality); otherwise the first high-confidence
// suggested chord progression, in band order, can still be installed without
// touching the key.
func (s *Session) applyContextSuggestions(decisions map[AgentID]*Decision) {
	votes := make(map[string]int)
	for _, d := range decisions {
		if d == nil || !d.HasSuggestedKey || d.Confidence != ConfidenceHigh {
			continue
		}
		votes[musicctx.NormalizeRoot(d.SuggestedKey)]++
	}

	winner, count := "", 0
	for k, v := range votes {
		if v > count {
			winner, count = k, v
		}
	}

	if count >= KeyConsensusMinAgents {
		root, quality := splitKeyQuality(winner)
		scale, ok := musicctx.Scale(root, quality)
		if ok {
			s.Context.Key = humanKeyName(root, quality)
			s.Context.Scale = scale
			if chords, ok := musicctx.DiatonicFallbackChords(root, quality); ok {
				s.Context.ChordProgression = chords
			}
			return
		}
	}

	// No key consensus: the first high-confidence suggested chord
	// progression, in fixed band order, replaces the progression.
	for _, id := range AllAgentIDs {
		d := decisions[id]
		if d == nil || d.Confidence != ConfidenceHigh || len(d.SuggestedChords) == 0 {
			continue
		}
		s.Context.ChordProgression = d.SuggestedChords
		return
	}
}

// splitKeyQuality reads a normalized key string like "Am" or "C" into its
// root and quality; a trailing lowercase "m" marks a minor key.
func splitKeyQuality(key string) (root string, quality musicctx.Quality) {
	if strings.HasSuffix(key, "m") && len(key) > 1 {
		return strings.TrimSuffix(key, "m"), musicctx.Minor
	}
	return key, musicctx.Major
}

// humanKeyName renders the human-readable key form the rest of
// the session (ParseAnchors, prompts) uses, matching a consensus vote's
// literal "G major" rather than the compact "G"/"Am" vote-key shorthand.
func humanKeyName(root string, quality musicctx.Quality) string {
	if quality == musicctx.Minor {
		return root + " minor"
	}
	return root + " major"
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}
