package musicctx

import "strings"

// Quality is a key's mode.
type Quality string

const (
	Major Quality = "major"
	Minor Quality = "minor"
)

// majorIntervals and minorIntervals are semitone offsets from the root.
var majorIntervals = []int{0, 2, 4, 5, 7, 9, 11}
var minorIntervals = []int{0, 2, 3, 5, 7, 8, 10}

// sharpChromatic and flatChromatic are the two enharmonic spellings the
// orchestrator picks between by key convention.
var sharpChromatic = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
var flatChromatic = []string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

// flatBiasedMajorRoots and flatBiasedMinorRoots name the keys that read more
// naturally in flats even without an explicit flat accidental.
var flatBiasedMajorRoots = map[string]bool{"F": true}
var flatBiasedMinorRoots = map[string]bool{"D": true, "G": true, "C": true, "F": true}

// NormalizeRoot uppercases the letter and lowercases any accidental, e.g.
// "bB" -> "Bb", "f#" -> "F#".
func NormalizeRoot(root string) string {
	root = strings.TrimSpace(root)
	if root == "" {
		return root
	}
	letter := strings.ToUpper(root[:1])
	rest := strings.ToLower(root[1:])
	return letter + rest
}

// pitchIndex finds a root's semitone index in either chromatic spelling.
func pitchIndex(root string) (int, bool) {
	for i, n := range sharpChromatic {
		if n == root {
			return i, true
		}
	}
	for i, n := range flatChromatic {
		if n == root {
			return i, true
		}
	}
	return 0, false
}

// useFlats decides the chromatic spelling convention for a given root+quality.
func useFlats(root string, quality Quality) bool {
	if strings.HasSuffix(root, "b") {
		return true
	}
	if strings.HasSuffix(root, "#") {
		return false
	}
	if quality == Major {
		return flatBiasedMajorRoots[root]
	}
	return flatBiasedMinorRoots[root]
}

// Scale derives the ordered 7 pitch-class names for root+quality.
func Scale(root string, quality Quality) ([]string, bool) {
	root = NormalizeRoot(root)
	idx, ok := pitchIndex(root)
	if !ok {
		return nil, false
	}
	intervals := majorIntervals
	if quality == Minor {
		intervals = minorIntervals
	}
	table := sharpChromatic
	if useFlats(root, quality) {
		table = flatChromatic
	}
	scale := make([]string, 0, 7)
	for _, step := range intervals {
		scale = append(scale, table[(idx+step)%12])
	}
	return scale, true
}

// DiatonicFallbackChords builds the minimal 4-chord diatonic progression
// installed after a consensus key change.
func DiatonicFallbackChords(root string, quality Quality) ([]string, bool) {
	scale, ok := Scale(root, quality)
	if !ok {
		return nil, false
	}
	if quality == Major {
		// I - vi - IV - V
		return []string{
			scale[0],
			scale[5] + "m",
			scale[3],
			scale[4],
		}, true
	}
	// i - VI - III - VII
	return []string{
		scale[0] + "m",
		scale[5],
		scale[2],
		scale[6],
	}, true
}
