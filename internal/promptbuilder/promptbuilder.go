// Package promptbuilder implements the deterministic prompt templates
// (jam-start, directive, auto-tick) over the current musical context, the
// band-state line for each other agent, and an optional audio-feedback
// summary. Every output is built with plain string concatenation and
// fmt.Sprintf so equal inputs always yield byte-equal prompts.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/jamctl/internal/jam"
	"github.com/Conceptual-Machines/jamctl/internal/pattern"
	"github.com/Conceptual-Machines/jamctl/pkg/personas"
)

// PeerState is one other agent's band-state line input.
type PeerState struct {
	ID      jam.AgentID
	Emoji   string
	Name    string
	Key     string // current musical key shown in the peer's line, e.g. scale quality tag
	Pattern string
	Muted   bool
	HasRun  bool // false on the very first round, before it has taken a turn
}

// bandStateLines renders one line per peer in roster order
// "emoji name (key) [summary]: <pattern_or_silence>" format. Muted peers
// always show as silence regardless of their last accepted pattern.
func bandStateLines(peers []PeerState) string {
	if len(peers) == 0 {
		return "(no other agents in this jam)"
	}
	var b strings.Builder
	for _, p := range peers {
		pat := p.Pattern
		if p.Muted {
			pat = jam.PatternSilence
		}
		if !p.HasRun {
			b.WriteString(fmt.Sprintf("%s %s: first round — no pattern yet\n", p.Emoji, p.Name))
			continue
		}
		if pat == "" {
			pat = jam.PatternSilence
		}
		summary := pattern.Summarize(pat)
		if summary != "" {
			b.WriteString(fmt.Sprintf("%s %s (%s) [%s]: %s\n", p.Emoji, p.Name, p.Key, summary, pat))
		} else {
			b.WriteString(fmt.Sprintf("%s %s (%s): %s\n", p.Emoji, p.Name, p.Key, pat))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// contextLines renders the shared musical-context block embedded in every
// prompt kind.
func contextLines(ctx jam.MusicalContext) string {
	var b strings.Builder
	genre := ctx.Genre
	if genre == "" {
		genre = "(unset)"
	}
	fmt.Fprintf(&b, "Genre: %s\n", genre)
	key := ctx.Key
	if key == "" {
		key = "(unset)"
	}
	fmt.Fprintf(&b, "Key/Scale: %s [%s]\n", key, strings.Join(ctx.Scale, " "))
	fmt.Fprintf(&b, "BPM: %d   Time: %s   Energy: %d/10\n", ctx.BPM, ctx.TimeSignature, ctx.Energy)
	if len(ctx.ChordProgression) > 0 {
		fmt.Fprintf(&b, "Chords: %s\n", strings.Join(ctx.ChordProgression, " - "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func audioBlock(summary string, has bool) string {
	if !has || summary == "" {
		return ""
	}
	return "AUDIO FEEDBACK: " + summary + "\n"
}

// jsonContract is appended verbatim to every prompt kind, the closing
// "strict JSON output contract".
const jsonContract = `Respond with exactly one JSON object, no other text:
{
  "pattern": "<pattern DSL expression, \"silence\", or \"no_change\">",
  "thoughts": "<short first-person note>",
  "commentary": "<optional short aside to the band>",
  "decision": {
    "tempo_delta_pct": <optional number, -50..50>,
    "energy_delta": <optional integer, -3..3>,
    "arrangement_intent": "<optional: build|breakdown|drop|strip_back|bring_forward|hold|no_change|transition>",
    "confidence": "<optional: low|medium|high>",
    "suggested_key": "<optional key name>",
    "suggested_chords": ["<optional chord list>"]
  }
}`

// JamStart builds the jam-start prompt: first round, full context,
// every peer shown as "no pattern yet", no boss directive.
func JamStart(round int, ctx jam.MusicalContext, peers []PeerState, audioSummary string, hasAudio bool) string {
	var b strings.Builder
	b.WriteString("JAM START — CONTEXT\n")
	fmt.Fprintf(&b, "Round: %d (first round)\n\n", round)
	b.WriteString(contextLines(ctx))
	b.WriteString("\n\n")
	if block := audioBlock(audioSummary, hasAudio); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString("BAND STATE:\n")
	b.WriteString(bandStateLines(peers))
	b.WriteString("\n\n")
	b.WriteString("BOSS SAYS: (nothing yet)\n\n")
	b.WriteString("You have no pattern yet. Start the jam.\n\n")
	b.WriteString(jsonContract)
	return b.String()
}

// Directive builds the directive prompt. targeted is true when this
// text was aimed squarely at the receiving agent via @mention.
func Directive(round int, text string, targeted bool, ctx jam.MusicalContext, currentPattern string, peers []PeerState, audioSummary string, hasAudio bool) string {
	var b strings.Builder
	b.WriteString("DIRECTIVE from the boss.\n")
	fmt.Fprintf(&b, "Round: %d\n\n", round)
	if targeted {
		fmt.Fprintf(&b, "BOSS SAYS TO YOU: %s\n\n", text)
	} else {
		fmt.Fprintf(&b, "BOSS SAYS: %s\n\n", text)
	}
	b.WriteString(contextLines(ctx))
	b.WriteString("\n")
	if currentPattern == "" {
		currentPattern = jam.PatternSilence
	}
	fmt.Fprintf(&b, "Your current pattern: %s\n\n", currentPattern)
	if block := audioBlock(audioSummary, hasAudio); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString("BAND STATE:\n")
	b.WriteString(bandStateLines(peers))
	b.WriteString("\n\n")
	b.WriteString("Respond with your updated pattern.\n\n")
	b.WriteString(jsonContract)
	return b.String()
}

// AutoTick builds the auto-tick prompt: listen-and-evolve guidance,
// explicit nudges toward no_change when nothing needs to move and against
// long no_change runs or gratuitous silence.
func AutoTick(round int, ctx jam.MusicalContext, currentPattern string, peers []PeerState, audioSummary string, hasAudio bool) string {
	var b strings.Builder
	b.WriteString("AUTO-TICK — LISTEN AND EVOLVE\n")
	fmt.Fprintf(&b, "Round: %d\n\n", round)
	b.WriteString(contextLines(ctx))
	b.WriteString("\n")
	if currentPattern == "" {
		currentPattern = jam.PatternSilence
	}
	fmt.Fprintf(&b, "Your current pattern: %s\n\n", currentPattern)
	if block := audioBlock(audioSummary, hasAudio); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString("BAND STATE:\n")
	b.WriteString(bandStateLines(peers))
	b.WriteString("\n\n")
	b.WriteString("Use \"no_change\" to hold the groove when it still serves the moment — avoid long runs of\n")
	b.WriteString("no_change just to look busy, but don't manufacture change for its own sake either.\n")
	b.WriteString("Use \"silence\" only for a deliberate strip-back, not as a default.\n\n")
	b.WriteString(jsonContract)
	return b.String()
}

// SystemPrompt builds the persona system prompt installed once per agent
// session: the persona body, an optional genre-specific note, the
// shared band policy, and the pattern DSL reference, appended verbatim in
// that order.
func SystemPrompt(p personas.Persona, policy, dslRef, genre string) string {
	var b strings.Builder
	b.WriteString(p.Body)
	b.WriteString("\n\n")
	if genre != "" {
		fmt.Fprintf(&b, "Tonight's genre: %s.\n\n", genre)
	}
	b.WriteString(policy)
	b.WriteString("\n\n")
	b.WriteString(dslRef)
	return strings.TrimSpace(b.String())
}
