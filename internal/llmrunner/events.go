// Package llmrunner runs LLM turns over the `llm` CLI: one subprocess per
// agent-turn, NDJSON streamed over stdout, mapped to a small set of
// runtime events, with a per-turn timeout and a single transport retry.
// Thread continuity lives in the provider-side thread id captured from the
// stream, so no process outlives its turn.
package llmrunner

// EventKind is the small set of runtime events every NDJSON line is
// mapped onto.
type EventKind string

const (
	EventThreadStarted EventKind = "thread_started"
	EventText          EventKind = "text"
	EventToolUse       EventKind = "tool_use"
	EventToolResult    EventKind = "tool_result"
	EventStatusDone    EventKind = "status_done"
	EventError         EventKind = "error"
)

// Event is one mapped runtime event produced from a single NDJSON line.
type Event struct {
	Kind       EventKind
	ThreadID   string
	Text       string
	ToolName   string
	ToolInput  string
	ToolOutput string
	Err        string
	DurationMs int64
	CostUSD    float64
}

// parseState is the mapper's running state across lines of one turn,
// threaded through mapEvent:
// (event_json, parse_state) -> (events[], next_state, turn_completed, fragments).
type parseState struct {
	sawDeltas    bool
	legacyActive bool
}

// rawEvent is the permissive wire shape every NDJSON line decodes into
// before kind normalization. Fields not present in a given event's shape
// are simply left zero.
type rawEvent struct {
	Type string `json:"type"`

	ThreadID string `json:"thread_id"`

	Delta string `json:"delta"`
	Text  string `json:"text"`

	Item *rawItem `json:"item"`

	DurationMs int64 `json:"duration_ms"`
	Usage      *struct {
		CostUSD float64 `json:"cost_usd"`
	} `json:"usage"`

	Error string `json:"error"`

	// Legacy {"type":"assistant","message":{"content":[...]}} shape.
	Message *rawLegacyMessage `json:"message"`
}

type rawItem struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Name   string `json:"name"`
	Input  any    `json:"input"`
	Result any    `json:"result"`
	Output any    `json:"output"`
}

type rawLegacyMessage struct {
	Content []rawLegacyContent `json:"content"`
}

type rawLegacyContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
