// Package musicctx extracts musical anchors from directive text: it never
// touches session state, only maps free text to a partial musical-context
// update plus a relative-cue bitmap.
package musicctx

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Direction is a relative cue's detected direction on one axis.
type Direction string

const (
	DirectionNone     Direction = ""
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionMixed    Direction = "mixed"
)

// Cues is the relative-cue bitmap for tempo and energy.
type Cues struct {
	Tempo  Direction
	Energy Direction
}

// Partial is the partial musical-context update a directive may carry. An
// empty Key or a nil BPM/Energy pointer means "not mentioned". ParseAnchors
// already clamps BPM and Energy to the governance bounds below.
type Partial struct {
	Key    string // human-readable key, e.g. "G major" or "A minor"; Scale holds its notes
	Scale  []string
	BPM    *int
	Energy *int
}

var (
	explicitKeyRe = regexp.MustCompile(`(?i)(?:switch(?:ing)?\s+to|chang(?:e|ing)\s+(?:the\s+)?key\s+to|key\s+of|in\s+the\s+key\s+of)\s+([A-Ga-g])([b#]?)\s*(major|minor|maj|min)?`)
	bareKeyRe     = regexp.MustCompile(`(?i)\b([A-Ga-g])([b#]?)\s+(major|minor)\b`)

	bpmWordRe    = regexp.MustCompile(`(?i)\bbpm\s+(\d+)\b`)
	tempoWordRe  = regexp.MustCompile(`(?i)\btempo\s+(\d+)\b`)
	numBpmRe     = regexp.MustCompile(`(?i)\b(\d+)\s*bpm\b`)
	doubleTimeRe = regexp.MustCompile(`(?i)\bdouble\s*time\b`)
	halfTimeRe   = regexp.MustCompile(`(?i)\bhalf\s*time\b`)

	energyNumRe     = regexp.MustCompile(`(?i)\benergy\s+(?:to\s+)?(\d+)\b`)
	fullEnergyRe    = regexp.MustCompile(`(?i)\b(full|max(?:imum)?)\s+energy\b`)
	minimalEnergyRe = regexp.MustCompile(`(?i)\bminimal\b`)

	tempoIncreaseRe = regexp.MustCompile(`(?i)\b(faster|speed up|quicker|pick (?:up|it up))\b`)
	tempoDecreaseRe = regexp.MustCompile(`(?i)\b(slower|slow down|chill(?: it)? down|dial (?:it |the tempo )?back)\b`)

	energyIncreaseRe = regexp.MustCompile(`(?i)\b(more energy|pump it up|hype it up|more intense|intensify|build (?:it |things )?up)\b`)
	energyDecreaseRe = regexp.MustCompile(`(?i)\b(less energy|calm (?:it )?down|chill out|mellow(?: it)? out|strip (?:it |things )?back|dial back the energy)\b`)
)

// ParseAnchors extracts the deterministic anchors: key, bpm, energy.
// currentBPM is required to resolve "double time"/"half time" relative to
// the session's current tempo before clamping.
func ParseAnchors(text string, currentBPM int) Partial {
	var p Partial

	if root, quality, ok := parseKey(text); ok {
		if scale, ok := Scale(root, quality); ok {
			if quality == Major {
				p.Key = root + " major"
			} else {
				p.Key = root + " minor"
			}
			p.Scale = scale
		}
	}

	if bpm, ok := parseBPM(text, currentBPM); ok {
		v := clamp(bpm, BPMMin, BPMMax)
		p.BPM = &v
	}

	if energy, ok := parseEnergy(text); ok {
		v := clamp(energy, EnergyMin, EnergyMax)
		p.Energy = &v
	}

	return p
}

// ParseCues extracts the relative-cue directions, independent of anchors.
func ParseCues(text string) Cues {
	return Cues{
		Tempo:  direction(tempoIncreaseRe.MatchString(text), tempoDecreaseRe.MatchString(text)),
		Energy: direction(energyIncreaseRe.MatchString(text), energyDecreaseRe.MatchString(text)),
	}
}

func direction(up, down bool) Direction {
	switch {
	case up && down:
		return DirectionMixed
	case up:
		return DirectionIncrease
	case down:
		return DirectionDecrease
	default:
		return DirectionNone
	}
}

func parseKey(text string) (root string, quality Quality, ok bool) {
	if m := explicitKeyRe.FindStringSubmatch(text); m != nil {
		return resolveKeyMatch(m)
	}
	if m := bareKeyRe.FindStringSubmatch(text); m != nil {
		return resolveKeyMatch(m)
	}
	return "", "", false
}

func resolveKeyMatch(m []string) (string, Quality, bool) {
	root := NormalizeRoot(m[1] + m[2])
	qualityWord := strings.ToLower(m[3])
	quality := Major // default quality when omitted
	if qualityWord == "minor" || qualityWord == "min" {
		quality = Minor
	}
	return root, quality, true
}

func parseBPM(text string, currentBPM int) (int, bool) {
	for _, re := range []*regexp.Regexp{bpmWordRe, tempoWordRe, numBpmRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n, true
			}
		}
	}
	if doubleTimeRe.MatchString(text) {
		return currentBPM * 2, true
	}
	if halfTimeRe.MatchString(text) {
		return int(math.Round(float64(currentBPM) / 2)), true
	}
	return 0, false
}

func parseEnergy(text string) (int, bool) {
	if m := energyNumRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if fullEnergyRe.MatchString(text) {
		return EnergyMax, true
	}
	if minimalEnergyRe.MatchString(text) {
		return EnergyMin, true
	}
	return 0, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BPMMin/BPMMax/EnergyMin/EnergyMax are the canonical governance clamp
// bounds. This package has no dependency on session state, so it is the
// single source of truth the jam package's constants table re-exports
// rather than duplicates.
const (
	BPMMin    = 60
	BPMMax    = 300
	EnergyMin = 1
	EnergyMax = 10
)
