package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/xhad/docchat/internal/types"
	"github.com/xhad/docchat/pkg/logging"
)

var log = logging.Component("llm")

var ErrNoMessages = errors.New("chat request has no messages")

// maxSteps bounds a turn to one tool step and one answer step.
const maxSteps = 2

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider        string
	Model           string
	APIKey          string
	BaseURL         string
	Temperature     float64
	MaxTokens       int
	MaxContextChars int
	SystemTemplate  string
	ContextTemplate string
	HTTPClient      *http.Client

	// LLM overrides the provider client.
	LLM llms.Model
	// Retriever supplies excerpts when a document is too long for the prompt.
	Retriever     types.Retriever
	RetrieveLimit int
}

// ChatEngine answers questions about a document using an LLM.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// Message is one turn of the conversation as sent by the browser.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages        []Message `json:"messages"`
	DocumentContent string    `json:"documentContent"`
	SessionID       string    `json:"sessionId,omitempty"`
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "anthropic"
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.MaxContextChars == 0 {
		config.MaxContextChars = 100000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are a helpful assistant that answers questions about a document the user uploaded. " +
			"Base your answers on the document content below. If the answer is not in the document, say so."
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "\n\nDocument content:\n%s"
	}
	if config.RetrieveLimit == 0 {
		config.RetrieveLimit = 8
	}

	model := config.LLM
	if model == nil {
		var err error
		if model, err = newModel(config); err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// ChatStream answers the last user message, streaming events on the returned
// channel. The channel is closed after a finish or error event.
func (ce *ChatEngine) ChatStream(ctx context.Context, req ChatRequest) (<-chan Event, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	firstTurn := countUserMessages(req.Messages) == 1
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.systemPrompt(ctx, req, firstTurn)),
	}
	content = append(content, convertMessages(req.Messages)...)

	logger := log.WithFields(logrus.Fields{
		"session":    req.SessionID,
		"messages":   len(req.Messages),
		"first_turn": firstTurn,
	})

	resultChan := make(chan Event)

	go func() {
		defer close(resultChan)

		send := func(ev Event) bool {
			select {
			case resultChan <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage Usage
		for step := 0; step < maxSteps; step++ {
			streamed := false
			opts := ce.callOptions(func(ctx context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				streamed = true
				if !send(Event{Type: EventText, Text: string(chunk)}) {
					return ctx.Err()
				}
				return nil
			})
			if firstTurn && step == 0 {
				opts = append(opts, llms.WithTools([]llms.Tool{extractSubjectTool}))
			}

			resp, err := ce.llm.GenerateContent(ctx, content, opts...)
			if err != nil {
				logger.WithError(err).WithField("step", step).Error("Chat completion failed")
				if send(Event{Type: EventError, Err: fmt.Errorf("chat error: %w", err)}) {
					send(Event{Type: EventFinish, Finish: &Finish{Reason: "error", Usage: usage}})
				}
				return
			}

			text, calls, stopReason := collectChoices(resp)
			usage = addUsage(usage, resp)

			if !streamed && text != "" {
				if !send(Event{Type: EventText, Text: text}) {
					return
				}
			}

			if len(calls) == 0 || step == maxSteps-1 {
				logger.WithFields(logrus.Fields{
					"steps":  step + 1,
					"reason": stopReason,
				}).Debug("Chat turn finished")
				send(Event{Type: EventFinish, Finish: &Finish{Reason: finishReason(stopReason, len(calls) > 0), Usage: usage}})
				return
			}

			assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if text != "" {
				assistant.Parts = append(assistant.Parts, llms.TextPart(text))
			}
			var results []llms.MessageContent

			for _, call := range calls {
				name := ""
				if call.FunctionCall != nil {
					name = call.FunctionCall.Name
				}
				if !send(Event{Type: EventToolCall, ToolCall: &ToolCall{ID: call.ID, Name: name, Args: toolArgs(call)}}) {
					return
				}

				result, err := runTool(call)
				if err != nil {
					logger.WithError(err).WithField("tool", name).Warn("Tool call failed")
					result = map[string]string{"error": err.Error()}
				}
				if !send(Event{Type: EventToolResult, ToolResult: &ToolResult{ID: call.ID, Result: result}}) {
					return
				}

				assistant.Parts = append(assistant.Parts, call)
				results = append(results, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: call.ID,
						Name:       name,
						Content:    mustJSON(result),
					}},
				})
			}

			content = append(content, assistant)
			content = append(content, results...)
		}
	}()

	return resultChan, nil
}

// Chat runs a turn to completion and returns the answer text.
func (ce *ChatEngine) Chat(ctx context.Context, req ChatRequest) (string, error) {
	events, err := ce.ChatStream(ctx, req)
	if err != nil {
		return "", err
	}

	var answer strings.Builder
	var chatErr error
	for ev := range events {
		switch ev.Type {
		case EventText:
			answer.WriteString(ev.Text)
		case EventError:
			chatErr = ev.Err
		}
	}
	if chatErr != nil {
		return answer.String(), chatErr
	}
	if err := ctx.Err(); err != nil {
		return answer.String(), err
	}
	return answer.String(), nil
}

func (ce *ChatEngine) callOptions(stream func(ctx context.Context, chunk []byte) error) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithMaxTokens(ce.config.MaxTokens),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithStreamingFunc(stream),
	}
	if ce.config.Model != "" {
		opts = append(opts, llms.WithModel(ce.config.Model))
	}
	return opts
}

func (ce *ChatEngine) systemPrompt(ctx context.Context, req ChatRequest, firstTurn bool) string {
	var b strings.Builder
	b.WriteString(ce.config.SystemTemplate)
	if firstTurn {
		b.WriteString(" Before answering, call the " + extractSubjectName + " tool once with the subject of the question.")
	}
	if doc := ce.documentContext(ctx, req); doc != "" {
		b.WriteString(fmt.Sprintf(ce.config.ContextTemplate, doc))
	}
	return b.String()
}

// documentContext returns the document text, or the most relevant excerpts of
// it when it exceeds MaxContextChars.
func (ce *ChatEngine) documentContext(ctx context.Context, req ChatRequest) string {
	doc := req.DocumentContent
	if len(doc) <= ce.config.MaxContextChars {
		return doc
	}

	logger := log.WithFields(logrus.Fields{
		"session": req.SessionID,
		"chars":   len(doc),
	})

	if ce.config.Retriever != nil && req.SessionID != "" {
		query := lastUserMessage(req.Messages)
		chunks, err := ce.config.Retriever.Retrieve(ctx, req.SessionID, query, ce.config.RetrieveLimit)
		switch {
		case err != nil:
			logger.WithError(err).Warn("Retrieval failed, truncating document")
		case len(chunks) == 0:
			logger.Debug("No indexed chunks, truncating document")
		default:
			excerpts := make([]string, 0, len(chunks))
			for _, c := range chunks {
				excerpts = append(excerpts, c.Content)
			}
			logger.WithField("chunks", len(chunks)).Debug("Using retrieved excerpts")
			return truncate(strings.Join(excerpts, "\n\n---\n\n"), ce.config.MaxContextChars)
		}
	}

	return truncate(doc, ce.config.MaxContextChars)
}

func convertMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := llms.ChatMessageTypeHuman
		switch strings.ToLower(m.Role) {
		case "assistant":
			role = llms.ChatMessageTypeAI
		case "system":
			role = llms.ChatMessageTypeSystem
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func countUserMessages(messages []Message) int {
	n := 0
	for _, m := range messages {
		if strings.EqualFold(m.Role, "user") {
			n++
		}
	}
	return n
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "user") {
			return messages[i].Content
		}
	}
	return ""
}

// collectChoices merges choices; some providers return one choice per content block.
func collectChoices(resp *llms.ContentResponse) (string, []llms.ToolCall, string) {
	if resp == nil {
		return "", nil, ""
	}
	var text strings.Builder
	var calls []llms.ToolCall
	stopReason := ""
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		text.WriteString(choice.Content)
		calls = append(calls, choice.ToolCalls...)
		if choice.StopReason != "" {
			stopReason = choice.StopReason
		}
	}
	return text.String(), calls, stopReason
}

func addUsage(u Usage, resp *llms.ContentResponse) Usage {
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return u
	}
	info := resp.Choices[0].GenerationInfo
	u.PromptTokens += intValue(info, "InputTokens") + intValue(info, "PromptTokens")
	u.CompletionTokens += intValue(info, "OutputTokens") + intValue(info, "CompletionTokens")
	return u
}

func intValue(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func finishReason(stop string, pendingTools bool) string {
	switch strings.ToLower(stop) {
	case "end_turn", "stop", "stop_sequence":
		return "stop"
	case "max_tokens", "length":
		return "length"
	case "tool_use", "tool_calls":
		return "tool-calls"
	case "":
		if pendingTools {
			return "tool-calls"
		}
		return "stop"
	}
	return "other"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
