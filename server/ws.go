package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xhad/docchat/pkg/llm"
)

// Message is the websocket envelope in both directions.
type Message struct {
	Type    string          `json:"type"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wsSession holds one connection's conversation. A client either sends the
// full request in Data, or sets the document once and then sends questions
// as Content.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes

	stateMu   sync.Mutex
	document  string
	sessionID string
	history   []llm.Message
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())

	sess := &wsSession{conn: conn}

	// Turns on one connection are answered in order.
	turns := make(chan Message, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range turns {
			s.handleChatMessage(ctx, sess, msg)
		}
	}()
	defer func() {
		cancel()
		close(turns)
		<-done
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("Error reading message")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			sess.send("error", "Invalid message", nil)
			continue
		}

		switch msg.Type {
		case "document":
			var meta struct {
				DocumentContent string `json:"documentContent"`
				SessionID       string `json:"sessionId"`
			}
			if len(msg.Data) > 0 {
				if err := json.Unmarshal(msg.Data, &meta); err != nil {
					sess.send("error", "Invalid document message", nil)
					continue
				}
			}
			text := meta.DocumentContent
			if text == "" {
				text = msg.Content
			}
			sess.setDocument(text, meta.SessionID)
			sess.send("status", "Document loaded", nil)
		case "chat":
			select {
			case turns <- msg:
			default:
				sess.send("error", "Too many pending messages", nil)
			}
		default:
			sess.send("error", "Unknown message type: "+msg.Type, nil)
		}
	}
}

func (s *Server) handleChatMessage(ctx context.Context, sess *wsSession, msg Message) {
	if s.chat == nil {
		sess.send("error", "Chat is not configured", nil)
		return
	}

	req, stateful, err := sess.request(msg)
	if err != nil {
		sess.send("error", "Invalid chat request", nil)
		return
	}

	events, err := s.chat.ChatStream(ctx, req)
	if err != nil {
		sess.send("error", err.Error(), nil)
		return
	}

	var answer strings.Builder
	for ev := range events {
		switch ev.Type {
		case llm.EventText:
			answer.WriteString(ev.Text)
			sess.send("stream", ev.Text, nil)
		case llm.EventToolCall:
			sess.send("tool_call", ev.ToolCall.Name, ev.ToolCall)
		case llm.EventToolResult:
			sess.send("tool_result", "", ev.ToolResult)
		case llm.EventError:
			sess.send("error", ev.Err.Error(), nil)
		case llm.EventFinish:
			sess.send("finish", ev.Finish.Reason, ev.Finish)
		}
	}

	if stateful && answer.Len() > 0 {
		sess.appendHistory(llm.Message{Role: "assistant", Content: answer.String()})
	}
}

// request builds the chat request for msg. The second result reports whether
// the connection's own history was used.
func (sess *wsSession) request(msg Message) (llm.ChatRequest, bool, error) {
	if len(msg.Data) > 0 {
		var req llm.ChatRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return llm.ChatRequest{}, false, err
		}
		return req, false, nil
	}

	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	sess.history = append(sess.history, llm.Message{Role: "user", Content: msg.Content})
	return llm.ChatRequest{
		Messages:        append([]llm.Message(nil), sess.history...),
		DocumentContent: sess.document,
		SessionID:       sess.sessionID,
	}, true, nil
}

func (sess *wsSession) setDocument(text, sessionID string) {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	sess.document = text
	sess.sessionID = sessionID
	sess.history = nil
}

func (sess *wsSession) appendHistory(m llm.Message) {
	sess.stateMu.Lock()
	defer sess.stateMu.Unlock()
	sess.history = append(sess.history, m)
}

func (sess *wsSession) send(msgType, content string, data any) {
	msg := Message{
		Type:    msgType,
		Content: content,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.WithError(err).Warn("Failed to encode message data")
		} else {
			msg.Data = raw
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.conn.WriteJSON(msg); err != nil {
		log.WithError(err).Debug("Error sending message")
	}
}
