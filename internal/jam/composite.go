package jam

import "strings"

// CompositeProgram builds the composite pattern DSL program: a
// lone pattern when exactly one activated-and-unmuted agent has a
// non-silence pattern, silence when none do, else a stack(...) of all of
// them in activated order.
func (s *Session) CompositeProgram() string {
	var layers []string
	for _, id := range s.activated {
		if s.muted[id] {
			continue
		}
		a := s.agents[id]
		if a == nil {
			continue
		}
		if a.CurrentPattern == "" || a.CurrentPattern == PatternSilence {
			continue
		}
		layers = append(layers, a.CurrentPattern)
	}
	switch len(layers) {
	case 0:
		return PatternSilence
	case 1:
		return layers[0]
	default:
		return "stack(" + strings.Join(layers, ", ") + ")"
	}
}
