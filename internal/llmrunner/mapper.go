package llmrunner

import (
	"encoding/json"
	"regexp"
	"strings"
)

// normalizeKind maps slash/underscore/camelCase spellings of an NDJSON
// event's type onto the dotted canonical form used internally, e.g.
// "thread_started", "thread/started", "threadStarted" all normalize to
// "thread.started".
var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

func normalizeKind(raw string) string {
	s := camelBoundary.ReplaceAllString(raw, "$1.$2")
	s = strings.ReplaceAll(s, "/", ".")
	s = strings.ReplaceAll(s, "_", ".")
	return strings.ToLower(s)
}

// mapEvent is a pure function over the event stream: given
// one NDJSON line and the running parse state, it returns the runtime
// events it produces, the next state, whether the turn is now complete,
// and any assistant-text fragments it contributed (for the legacy format's
// accumulation, which has no incremental delta events of its own).
func mapEvent(line []byte, st parseState) (events []Event, next parseState, done bool, fragments []string) {
	next = st
	line = []byte(strings.TrimSpace(string(line)))
	if len(line) == 0 {
		return nil, next, false, nil
	}

	var raw rawEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, next, false, nil
	}

	// Legacy assistant/result shape: text blocks
	// accumulate, a bare {"type":"result"} line terminates the turn.
	if raw.Type == "assistant" && raw.Message != nil {
		next.legacyActive = true
		for _, c := range raw.Message.Content {
			if c.Type == "text" && c.Text != "" {
				fragments = append(fragments, c.Text)
				events = append(events, Event{Kind: EventText, Text: c.Text})
			}
		}
		return events, next, false, fragments
	}
	if raw.Type == "result" {
		return []Event{{Kind: EventStatusDone}}, next, true, nil
	}

	kind := normalizeKind(raw.Type)

	switch kind {
	case "thread.started":
		return []Event{{Kind: EventThreadStarted, ThreadID: raw.ThreadID}}, next, false, nil

	case "item.agent.message.delta":
		text := firstNonEmpty(raw.Delta, raw.Text)
		if text == "" {
			return nil, next, false, nil
		}
		next.sawDeltas = true
		return []Event{{Kind: EventText, Text: text}}, next, false, []string{text}

	case "item.completed":
		if raw.Item == nil {
			return nil, next, false, nil
		}
		switch raw.Item.Type {
		case "agent.message", "agent_message":
			if next.sawDeltas {
				// Deltas already carried the text; the completed event is
				// just the terminator for this item.
				return nil, next, false, nil
			}
			if raw.Item.Text == "" {
				return nil, next, false, nil
			}
			return []Event{{Kind: EventText, Text: raw.Item.Text}}, next, false, []string{raw.Item.Text}
		case "mcp.tool.call", "mcp_tool_call":
			toolEvents := []Event{{Kind: EventToolUse, ToolName: raw.Item.Name, ToolInput: toJSONString(raw.Item.Input)}}
			if out := firstNonEmptyAny(raw.Item.Result, raw.Item.Output); out != "" {
				toolEvents = append(toolEvents, Event{Kind: EventToolResult, ToolName: raw.Item.Name, ToolOutput: out})
			}
			return toolEvents, next, false, nil
		}
		return nil, next, false, nil

	case "item.mcp.tool.call.progress":
		if raw.Item == nil {
			return nil, next, false, nil
		}
		ev := Event{Kind: EventToolUse, ToolName: raw.Item.Name, ToolInput: toJSONString(raw.Item.Input)}
		if out := firstNonEmptyAny(raw.Item.Result, raw.Item.Output); out != "" {
			return []Event{ev, {Kind: EventToolResult, ToolName: raw.Item.Name, ToolOutput: out}}, next, false, nil
		}
		return []Event{ev}, next, false, nil

	case "turn.completed":
		return []Event{{Kind: EventStatusDone, DurationMs: raw.DurationMs, CostUSD: costOf(raw.Usage)}}, next, true, nil

	case "turn.failed":
		msg := firstNonEmpty(raw.Error, "turn failed")
		return []Event{{Kind: EventError, Err: msg}}, next, true, nil

	case "error":
		return []Event{{Kind: EventError, Err: raw.Error}}, next, false, nil
	}

	return nil, next, false, nil
}

func costOf(u *struct {
	CostUSD float64 `json:"cost_usd"`
}) float64 {
	if u == nil {
		return 0
	}
	return u.CostUSD
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyAny(vals ...any) string {
	for _, v := range vals {
		if v == nil {
			continue
		}
		if s := toJSONString(v); s != "" && s != "null" {
			return s
		}
	}
	return ""
}

func toJSONString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
