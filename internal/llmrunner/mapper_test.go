package llmrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapEventTable(t *testing.T) {
	cases := []struct {
		name       string
		line       string
		wantKind   EventKind
		wantDone   bool
		wantThread string
	}{
		{
			name:       "thread started",
			line:       `{"type":"thread.started","thread_id":"th-1"}`,
			wantKind:   EventThreadStarted,
			wantThread: "th-1",
		},
		{
			name:     "thread started underscore variant",
			line:     `{"type":"thread_started","thread_id":"th-2"}`,
			wantKind: EventThreadStarted,
		},
		{
			name:     "agent message delta",
			line:     `{"type":"item.agent.message.delta","delta":"hel"}`,
			wantKind: EventText,
		},
		{
			name:     "turn completed",
			line:     `{"type":"turn.completed","duration_ms":120,"usage":{"cost_usd":0.01}}`,
			wantKind: EventStatusDone,
			wantDone: true,
		},
		{
			name:     "turn failed",
			line:     `{"type":"turn.failed","error":"boom"}`,
			wantKind: EventError,
			wantDone: true,
		},
		{
			name:     "bare error",
			line:     `{"type":"error","error":"transient"}`,
			wantKind: EventError,
			wantDone: false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			events, _, done, _ := mapEvent([]byte(c.line), parseState{})
			require.Len(t, events, 1)
			assert.Equal(t, c.wantKind, events[0].Kind)
			assert.Equal(t, c.wantDone, done)
			if c.wantThread != "" {
				assert.Equal(t, c.wantThread, events[0].ThreadID)
			}
		})
	}
}

func TestMapEventAgentMessageCompletedSkippedAfterDeltas(t *testing.T) {
	st := parseState{}
	_, st, _, _ = mapEvent([]byte(`{"type":"item.agent.message.delta","delta":"hi"}`), st)
	assert.True(t, st.sawDeltas)

	events, _, done, _ := mapEvent([]byte(`{"type":"item.completed","item":{"type":"agent_message","text":"hi"}}`), st)
	assert.Empty(t, events)
	assert.False(t, done)
}

func TestMapEventAgentMessageCompletedUsedWithoutDeltas(t *testing.T) {
	events, _, _, fragments := mapEvent([]byte(`{"type":"item.completed","item":{"type":"agent_message","text":"hello"}}`), parseState{})
	require.Len(t, events, 1)
	assert.Equal(t, EventText, events[0].Kind)
	assert.Equal(t, []string{"hello"}, fragments)
}

func TestMapEventToolCallCompleted(t *testing.T) {
	events, _, _, _ := mapEvent([]byte(`{"type":"item.completed","item":{"type":"mcp_tool_call","name":"sampler","input":{"bank":3},"result":"ok"}}`), parseState{})
	require.Len(t, events, 2)
	assert.Equal(t, EventToolUse, events[0].Kind)
	assert.Equal(t, EventToolResult, events[1].Kind)
}

func TestMapEventLegacyAssistantAndResult(t *testing.T) {
	st := parseState{}
	events, st, done, fragments := mapEvent([]byte(`{"type":"assistant","message":{"content":[{"type":"text","text":"part one "}]}}`), st)
	require.Len(t, events, 1)
	assert.Equal(t, EventText, events[0].Kind)
	assert.False(t, done)
	assert.Equal(t, []string{"part one "}, fragments)

	events, _, done, _ = mapEvent([]byte(`{"type":"result"}`), st)
	require.Len(t, events, 1)
	assert.Equal(t, EventStatusDone, events[0].Kind)
	assert.True(t, done)
}

func TestMapEventEmptyLineIgnored(t *testing.T) {
	events, _, done, _ := mapEvent([]byte("   "), parseState{})
	assert.Nil(t, events)
	assert.False(t, done)
}

func TestMapEventUnrecognizedTypeIgnored(t *testing.T) {
	events, _, done, _ := mapEvent([]byte(`{"type":"something.unknown"}`), parseState{})
	assert.Nil(t, events)
	assert.False(t, done)
}
