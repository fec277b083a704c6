package jam

import "math/rand"

// Preset is a named genre starting point installed by set_jam_preset.
type Preset struct {
	ID               string
	Genre            string
	Key              string
	Scale            []string
	BPM              int
	TimeSignature    string
	Energy           int
	ChordProgression []string
}

// Presets is the fixed preset catalog. Each entry's scale is precomputed so
// SetPreset never needs the musicctx parser for a canonical genre key.
var Presets = map[string]Preset{
	"lofi-chill": {
		ID:               "lofi-chill",
		Genre:            "lofi",
		Key:              "D minor",
		Scale:            []string{"D", "E", "F", "G", "A", "Bb", "C"},
		BPM:              78,
		TimeSignature:    "4/4",
		Energy:           3,
		ChordProgression: []string{"Dm", "Bb", "F", "C"},
	},
	"house-groove": {
		ID:               "house-groove",
		Genre:            "house",
		Key:              "A minor",
		Scale:            []string{"A", "B", "C", "D", "E", "F", "G"},
		BPM:              124,
		TimeSignature:    "4/4",
		Energy:           6,
		ChordProgression: []string{"Am", "F", "C", "G"},
	},
	"drum-and-bass": {
		ID:               "drum-and-bass",
		Genre:            "drum and bass",
		Key:              "E minor",
		Scale:            []string{"E", "F#", "G", "A", "B", "C", "D"},
		BPM:              174,
		TimeSignature:    "4/4",
		Energy:           8,
		ChordProgression: []string{"Em", "C", "G", "D"},
	},
	"ambient-sparse": {
		ID:               "ambient-sparse",
		Genre:            "ambient",
		Key:              "",
		Scale:            nil,
		BPM:              70,
		TimeSignature:    "4/4",
		Energy:           2,
		ChordProgression: nil,
	},
}

// presetOrder fixes an iteration order over Presets so random selection is
// reproducible under a seeded rand.
var presetOrder = []string{"lofi-chill", "house-groove", "drum-and-bass", "ambient-sparse"}

// RandomPresetID picks one preset id for an autonomous-opening session,
// which starts configured rather than waiting for set_jam_preset.
func RandomPresetID(r *rand.Rand) string {
	if r == nil {
		return presetOrder[rand.Intn(len(presetOrder))]
	}
	return presetOrder[r.Intn(len(presetOrder))]
}

// SetPreset installs a named preset as the session's initial musical
// context and flips the preset-configured flag that gates directives in
// staged-silent mode.
func (s *Session) SetPreset(id string) (Preset, bool) {
	p, ok := Presets[id]
	if !ok {
		return Preset{}, false
	}
	s.Context = MusicalContext{
		Genre:            p.Genre,
		Key:              p.Key,
		Scale:            append([]string(nil), p.Scale...),
		ChordProgression: append([]string(nil), p.ChordProgression...),
		BPM:              p.BPM,
		TimeSignature:    p.TimeSignature,
		Energy:           p.Energy,
	}
	s.PresetSet = true
	return p, true
}
