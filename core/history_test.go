package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedHistoryCapNeverExceeded(t *testing.T) {
	h := NewBoundedHistory(5)
	for i := 0; i < 50; i++ {
		h.Append(NewUserMessage(fmt.Sprintf("msg %d", i)))
		assert.LessOrEqual(t, h.Len(), 5)
	}
	assert.Equal(t, 5, h.Len())

	msgs := h.Messages()
	assert.Equal(t, "msg 45", msgs[0].Text, "eviction is FIFO")
	assert.Equal(t, "msg 49", msgs[4].Text)
}

func TestBoundedHistoryDefaultCap(t *testing.T) {
	h := NewBoundedHistory(0)
	assert.Equal(t, DefaultHistoryCap, h.Cap())
}

func TestBoundedHistoryToolPairEvictsTogether(t *testing.T) {
	h := NewBoundedHistory(4)

	call := NewToolCallMessage([]ToolCall{{ID: "call_1", Name: "create_expense"}})
	result := NewToolResultMessage([]ToolResult{{ToolCallID: "call_1", Name: "create_expense", Success: true}})
	h.AppendExchange(call, result)
	h.Append(NewUserMessage("next question"))
	h.Append(NewAssistantMessage("next answer"))
	require.Equal(t, 4, h.Len())

	// One more append evicts the tool-call head; its result must go with it.
	h.Append(NewUserMessage("another"))

	for _, m := range h.Messages() {
		assert.Empty(t, m.ToolCalls, "no dangling tool call")
		assert.Empty(t, m.ToolResults, "no orphaned tool result")
	}
	assert.Equal(t, 3, h.Len())
}

func TestBoundedHistoryFromSeed(t *testing.T) {
	seed := []Message{
		NewUserMessage("a"),
		NewAssistantMessage("b"),
		NewUserMessage("c"),
	}
	h := NewBoundedHistoryFrom(2, seed)
	require.Equal(t, 2, h.Len())
	assert.Equal(t, "b", h.Messages()[0].Text)
}

func TestBoundedHistoryMessagesIsACopy(t *testing.T) {
	h := NewBoundedHistory(3)
	h.Append(NewUserMessage("original"))

	msgs := h.Messages()
	msgs[0].Text = "mutated"

	assert.Equal(t, "original", h.Messages()[0].Text)
}
