package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision_PlainAction(t *testing.T) {
	decision, err := parseDecision(`{"thought": "need to log in", "action": {"name": "click", "args": {"selector": "#login"}}}`)

	require.NoError(t, err)
	require.NotNil(t, decision.Action)
	assert.Nil(t, decision.Done)
	assert.Equal(t, "click", decision.Action.Name)
	assert.Equal(t, "#login", decision.Action.Args["selector"])
	assert.Equal(t, "need to log in", decision.Action.Thought)
}

func TestParseDecision_MarkdownFence(t *testing.T) {
	decision, err := parseDecision("Here is my decision:\n```json\n{\"action\": {\"name\": \"navigate\", \"args\": {\"url\": \"https://example.com\"}}}\n```")

	require.NoError(t, err)
	require.NotNil(t, decision.Action)
	assert.Equal(t, "navigate", decision.Action.Name)
}

func TestParseDecision_LeadingProse(t *testing.T) {
	decision, err := parseDecision(`I will finish now. {"done": {"payload": {"count_before": 3, "count_after": 4}, "text": "uploaded"}}`)

	require.NoError(t, err)
	require.NotNil(t, decision.Done)
	assert.Equal(t, "uploaded", decision.Done.Text)
	assert.Equal(t, float64(3), decision.Done.Payload["count_before"])
}

func TestParseDecision_DoneWinsOverSimultaneousAction(t *testing.T) {
	decision, err := parseDecision(`{"action": {"name": "click", "args": {}}, "done": {"text": "finished"}}`)

	require.NoError(t, err)
	assert.Nil(t, decision.Action)
	require.NotNil(t, decision.Done)
	assert.Equal(t, "finished", decision.Done.Text)
}

func TestParseDecision_RepairsDamagedJSON(t *testing.T) {
	// Trailing comma and single quotes: invalid JSON a model often emits.
	decision, err := parseDecision(`{'action': {'name': 'click', 'args': {'selector': '#x',}},}`)

	require.NoError(t, err)
	require.NotNil(t, decision.Action)
	assert.Equal(t, "click", decision.Action.Name)
}

func TestParseDecision_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no JSON at all", "I am not sure what to do next."},
		{"neither action nor done", `{"thought": "hmm"}`},
		{"action without name", `{"action": {"args": {}}}`},
		{"empty response", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDecision(tt.response)
			assert.Error(t, err)
		})
	}
}
