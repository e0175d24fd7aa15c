package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type EventType int

const (
	EventText EventType = iota
	EventToolCall
	EventToolResult
	EventError
	EventFinish
)

// Event is one item of a chat stream. Exactly one payload field is set, matching Type.
type Event struct {
	Type       EventType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Err        error
	Finish     *Finish
}

type ToolCall struct {
	ID   string          `json:"toolCallId"`
	Name string          `json:"toolName"`
	Args json.RawMessage `json:"args"`
}

type ToolResult struct {
	ID     string `json:"toolCallId"`
	Result any    `json:"result"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type Finish struct {
	Reason string `json:"finishReason"`
	Usage  Usage  `json:"usage"`
}

// Stream part prefixes understood by the browser client.
const (
	partText       = '0'
	partToolCall   = '9'
	partToolResult = 'a'
	partError      = '3'
	partFinish     = 'd'
)

// SetStreamHeaders prepares a response for a data stream.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Vercel-AI-Data-Stream", "v1")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
}

// StreamWriter encodes events one per line as "<prefix>:<json>\n",
// flushing after each line when the writer supports it.
type StreamWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func NewStreamWriter(w io.Writer) *StreamWriter {
	sw := &StreamWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

func (s *StreamWriter) WriteEvent(ev Event) error {
	switch ev.Type {
	case EventText:
		return s.writePart(partText, ev.Text)
	case EventToolCall:
		return s.writePart(partToolCall, ev.ToolCall)
	case EventToolResult:
		return s.writePart(partToolResult, ev.ToolResult)
	case EventError:
		msg := "unknown error"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		return s.writePart(partError, msg)
	case EventFinish:
		return s.writePart(partFinish, ev.Finish)
	default:
		return fmt.Errorf("unknown event type %d", ev.Type)
	}
}

func (s *StreamWriter) writePart(prefix byte, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding stream part: %w", err)
	}

	line := make([]byte, 0, len(data)+3)
	line = append(line, prefix, ':')
	line = append(line, data...)
	line = append(line, '\n')

	if _, err := s.w.Write(line); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
