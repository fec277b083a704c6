// Package pattern validates and summarizes pattern DSL expressions: a
// structural check over the pattern DSL (balanced mini-notation delimiters,
// well-formed method chains) plus a compact textual summary for prompts.
// It never evaluates the DSL — only scans its shape.
package pattern

import "strings"

// Layer is one source-method call extracted from a pattern expression, e.g.
// s("bd sd").gain(0.8).fast(2) is one layer with source "s", tokens
// ["bd","sd"], effects {"gain":"0.8"}, modifiers ["fast"].
type Layer struct {
	Source    string // "s" or "note"
	Tokens    []string
	Bank      string // optional sound-bank/synth qualifier, e.g. s("bd:3")
	Effects   map[string]string
	Modifiers []string
}

// openers and closers are the closed set of mini-notation delimiters;
// an opening byte's index finds its closing byte.
var openers = []byte{'[', '<', '{', '('}
var closers = []byte{']', '>', '}', ')'}

func closingFor(open byte) byte {
	for i, o := range openers {
		if o == open {
			return closers[i]
		}
	}
	return 0
}

func isOpener(b byte) bool {
	for _, o := range openers {
		if o == b {
			return true
		}
	}
	return false
}

func isCloser(b byte) bool {
	for _, c := range closers {
		if c == b {
			return true
		}
	}
	return false
}

// splitTopLevelChain splits "a().b().c()" into ["a()", "b()", "c()"] without
// descending into nested parens/brackets.
func splitTopLevelChain(expr string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case isOpener(c):
			depth++
		case isCloser(c):
			depth--
		case c == '.' && depth == 0:
			parts = append(parts, expr[start:i])
			start = i + 1
		}
	}
	parts = append(parts, expr[start:])
	return parts
}

// splitTopLevelArgs splits "a, b(1, 2), c" into ["a", "b(1, 2)", "c"]
// without descending into nested delimiters, for stack(...)'s
// comma-separated sub-expressions.
func splitTopLevelArgs(args string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(args); i++ {
		c := args[i]
		switch {
		case isOpener(c):
			depth++
		case isCloser(c):
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(args[start:i]))
			start = i + 1
		}
	}
	parts = append(parts, strings.TrimSpace(args[start:]))
	return parts
}

// callName returns the identifier before the first "(" in a call like
// `gain(0.8)`, or "" if this segment isn't a call.
func callName(segment string) string {
	i := strings.IndexByte(segment, '(')
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(segment[:i])
}

// callArgs returns the substring between the first "(" and its matching
// ")", or "", false if unbalanced.
func callArgs(segment string) (string, bool) {
	i := strings.IndexByte(segment, '(')
	if i < 0 {
		return "", false
	}
	depth := 0
	for j := i; j < len(segment); j++ {
		switch segment[j] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return segment[i+1 : j], true
			}
		}
	}
	return "", false
}
