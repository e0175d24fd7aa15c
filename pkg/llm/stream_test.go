package llm

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewStreamWriter(rec)

	events := []Event{
		{Type: EventToolCall, ToolCall: &ToolCall{ID: "c1", Name: "extractSubject", Args: json.RawMessage(`{"subject":"x"}`)}},
		{Type: EventToolResult, ToolResult: &ToolResult{ID: "c1", Result: map[string]string{"subject": "x"}}},
		{Type: EventText, Text: "Hello \"world\"\n"},
		{Type: EventError, Err: errors.New("boom")},
		{Type: EventFinish, Finish: &Finish{Reason: "stop", Usage: Usage{PromptTokens: 3, CompletionTokens: 4}}},
	}
	for _, ev := range events {
		require.NoError(t, sw.WriteEvent(ev))
	}

	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, `9:{"toolCallId":"c1","toolName":"extractSubject","args":{"subject":"x"}}`, lines[0])
	assert.Equal(t, `a:{"toolCallId":"c1","result":{"subject":"x"}}`, lines[1])
	assert.Equal(t, `0:"Hello \"world\"\n"`, lines[2])
	assert.Equal(t, `3:"boom"`, lines[3])
	assert.Equal(t, `d:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":4}}`, lines[4])
	assert.True(t, rec.Flushed)
}

func TestStreamWriterUnknownEvent(t *testing.T) {
	sw := NewStreamWriter(httptest.NewRecorder())
	assert.Error(t, sw.WriteEvent(Event{Type: EventType(99)}))
}

func TestSetStreamHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetStreamHeaders(rec.Header())
	assert.Equal(t, "v1", rec.Header().Get("X-Vercel-AI-Data-Stream"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
