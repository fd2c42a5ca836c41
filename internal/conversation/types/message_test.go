package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendDoesNotAlias(t *testing.T) {
	base := make(History, 1, 4)
	base[0] = UserMessage("hi")

	a := base.Append(AssistantMessage("a"))
	b := base.Append(AssistantMessage("b"))

	assert.Len(t, base, 1)
	assert.Equal(t, "a", a[1].Content)
	assert.Equal(t, "b", b[1].Content)
}

func TestMessageJSONOmitsEmptyToolFields(t *testing.T) {
	data, err := json.Marshal(UserMessage("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hello"}`, string(data))

	assert.False(t, UserMessage("x").HasToolCalls())
	assert.True(t, Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "1"}}}.HasToolCalls())
}
