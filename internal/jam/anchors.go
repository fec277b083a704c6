package jam

import "github.com/Conceptual-Machines/jamctl/internal/musicctx"

// ApplyAnchors installs the deterministic directive anchors parsed by
// musicctx.ParseAnchors directly onto the session's musical context.
// Only the fields the parser actually found are touched; everything
// else in the context is left as-is. Key/Scale always travel together since
// the parser never sets one without the other.
func (s *Session) ApplyAnchors(p musicctx.Partial) {
	if p.Key != "" {
		s.Context.Key = p.Key
		s.Context.Scale = append([]string(nil), p.Scale...)
	}
	if p.BPM != nil {
		s.Context.BPM = *p.BPM
	}
	if p.Energy != nil {
		s.Context.Energy = *p.Energy
	}
}
