package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const extractSubjectName = "extractSubject"

// extractSubjectTool does nothing but echo its argument. Offering it on the
// first turn makes the model name the subject before answering.
var extractSubjectTool = llms.Tool{
	Type: "function",
	Function: &llms.FunctionDefinition{
		Name:        extractSubjectName,
		Description: "Extract the main subject of the user's question about the document.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subject": map[string]any{
					"type":        "string",
					"description": "The subject the user is asking about",
				},
			},
			"required": []string{"subject"},
		},
	},
}

type subjectArgs struct {
	Subject string `json:"subject"`
}

// runTool executes a tool call and returns its JSON-encodable result.
func runTool(call llms.ToolCall) (any, error) {
	if call.FunctionCall == nil {
		return nil, fmt.Errorf("tool call %s has no function", call.ID)
	}

	switch call.FunctionCall.Name {
	case extractSubjectName:
		var args subjectArgs
		if raw := strings.TrimSpace(call.FunctionCall.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("invalid %s arguments: %w", extractSubjectName, err)
			}
		}
		return map[string]string{"subject": args.Subject}, nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", call.FunctionCall.Name)
	}
}

// toolArgs returns the call's arguments as raw JSON, or an empty object.
func toolArgs(call llms.ToolCall) json.RawMessage {
	if call.FunctionCall == nil {
		return json.RawMessage("{}")
	}
	raw := strings.TrimSpace(call.FunctionCall.Arguments)
	if raw == "" || !json.Valid([]byte(raw)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
