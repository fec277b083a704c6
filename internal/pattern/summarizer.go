package pattern

import (
	"fmt"
	"sort"
	"strings"
)

// sourceMethods is the closed set of mini-notation source methods whose
// first argument is a balanced-delimiter mini-notation string.
var sourceMethods = map[string]bool{"s": true, "note": true}

// effectMethods lists method names the summarizer reports as "effects"
// (numeric/string single-argument calls) versus "modifiers" (everything
// else chained after a source call).
var effectMethods = map[string]bool{
	"gain": true, "pan": true, "speed": true, "room": true, "cutoff": true,
	"resonance": true, "delay": true, "shape": true, "crush": true,
}

// parseLayers walks a pattern expression's top-level method chain and
// extracts one Layer per source-method call found. A pattern with no
// recognized source call is itself a parse failure, since nothing would be
// left to summarize or broadcast.
func parseLayers(expr string) ([]Layer, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	if name := callName(expr); name == "stack" {
		args, ok := callArgs(expr)
		if !ok {
			return nil, fmt.Errorf("unbalanced parentheses in %q", expr)
		}
		var layers []Layer
		for _, sub := range splitTopLevelArgs(args) {
			subLayers, err := parseLayers(sub)
			if err != nil {
				return nil, err
			}
			layers = append(layers, subLayers...)
		}
		return layers, nil
	}

	segments := splitTopLevelChain(expr)
	var layers []Layer
	var cur *Layer

	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		name := callName(seg)
		if name == "" {
			return nil, fmt.Errorf("malformed call segment %q", seg)
		}
		args, ok := callArgs(seg)
		if !ok {
			return nil, fmt.Errorf("unbalanced parentheses in %q", seg)
		}

		if sourceMethods[name] {
			if cur != nil {
				layers = append(layers, *cur)
			}
			src, bank, tokens := parseSourceArgs(args)
			cur = &Layer{Source: name, Tokens: tokens, Bank: bank, Effects: map[string]string{}}
			_ = src
			continue
		}

		if cur == nil {
			return nil, fmt.Errorf("method %q used before a source call", name)
		}
		if effectMethods[name] {
			cur.Effects[name] = strings.Trim(args, `"' `)
		} else {
			cur.Modifiers = append(cur.Modifiers, name)
		}
	}
	if cur != nil {
		layers = append(layers, *cur)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("no source layer found in pattern")
	}
	return layers, nil
}

// parseSourceArgs splits a source call's first string argument into a bank
// qualifier (after ":") and whitespace/mini-notation tokens.
func parseSourceArgs(args string) (raw, bank string, tokens []string) {
	s := strings.Trim(strings.TrimSpace(args), `"'`)
	parts := strings.Fields(s)
	for i, t := range parts {
		if idx := strings.IndexByte(t, ':'); idx >= 0 {
			if bank == "" {
				bank = t[idx+1:]
			}
			parts[i] = t[:idx]
		}
	}
	return s, bank, parts
}

// Summarize produces the compact textual summary embedded in peer-state
// prompts. It returns "" for the two sentinels, since there is
// nothing to summarize.
func Summarize(p string) string {
	if p == "" || p == Silence || p == NoChange {
		return ""
	}
	layers, err := parseLayers(p)
	if err != nil {
		return ""
	}

	var b strings.Builder
	if len(layers) > 1 {
		fmt.Fprintf(&b, "%d layers: ", len(layers))
	}
	for i, l := range layers {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(strings.Join(l.Tokens, " "))
		if l.Bank != "" {
			fmt.Fprintf(&b, " (%s)", l.Bank)
		}
		if len(l.Effects) > 0 {
			b.WriteString(" [" + formatEffects(l.Effects) + "]")
		}
		if len(l.Modifiers) > 0 {
			b.WriteString(" {" + strings.Join(l.Modifiers, ",") + "}")
		}
	}
	return b.String()
}

func formatEffects(effects map[string]string) string {
	keys := make([]string, 0, len(effects))
	for k := range effects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+effects[k])
	}
	return strings.Join(parts, ",")
}
