// Package transform implements the Request Transformer: it converts an
// Anchor request into the neutral OpenAI intermediate form. Grounded on the
// teacher's internal/providers/base.go TransformAnthropicToOpenAI and
// TransformAssistantMessage, generalized from map[string]any manipulation to
// the typed anchor/openaiwire structs.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/claudish/claudish/internal/anchor"
	"github.com/claudish/claudish/internal/openaiwire"
)

// Result is the output of Request: the translated payload plus any
// top-level request fields that had no OpenAI equivalent and were dropped.
type Result struct {
	Request      *openaiwire.Request
	DroppedParams []string
}

var knownTopLevelFields = map[string]bool{
	"model": true, "max_tokens": true, "messages": true, "system": true,
	"tools": true, "tool_choice": true, "temperature": true, "stream": true,
	"stop_sequences": true, "metadata": true,
}

// Request converts an AnchorRequest into an OpenAIRequest. rawBody is the
// original JSON body, used only to detect unknown top-level fields for
// dropped_params via gjson so the typed path above never has to carry an
// "unknown fields" bag.
func Request(req *anchor.Request, rawBody []byte) (*Result, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("validation_error: messages must not be empty")
	}

	out := &openaiwire.Request{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Stream:        req.Stream,
		StreamOptions: &openaiwire.StreamOptions{IncludeUsage: true},
	}

	temp := 1.0
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	out.Temperature = &temp

	var messages []openaiwire.Message

	if sys := req.System.Flatten(); sys != "" {
		messages = append(messages, openaiwire.Message{Role: "system", Content: sys})
	}

	flattened, err := flattenMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	messages = append(messages, filterIdentityPreamble(flattened)...)
	out.Messages = messages

	if len(req.Tools) > 0 {
		tools, err := NormalizeTools(req.Tools)
		if err != nil {
			return nil, err
		}
		out.Tools = tools

		if len(req.ToolChoice) > 0 {
			tc, err := convertToolChoice(req.ToolChoice)
			if err != nil {
				return nil, err
			}
			out.ToolChoice = tc
		}
	}

	return &Result{Request: out, DroppedParams: droppedParams(rawBody)}, nil
}

// flattenMessages walks each Anchor message's Block array and emits zero or
// more OpenAI messages, per spec.md §4.1 step 2.
func flattenMessages(msgs []anchor.Message) ([]openaiwire.Message, error) {
	var out []openaiwire.Message

	for _, m := range msgs {
		switch m.Role {
		case "user":
			userMsgs, err := flattenUserMessage(m)
			if err != nil {
				return nil, err
			}
			out = append(out, userMsgs...)
		case "assistant":
			out = append(out, flattenAssistantMessage(m))
		default:
			return nil, fmt.Errorf("validation_error: unsupported message role %q", m.Role)
		}
	}

	return out, nil
}

func flattenUserMessage(m anchor.Message) ([]openaiwire.Message, error) {
	var (
		text  strings.Builder
		parts []openaiwire.ContentPart
		tools []openaiwire.Message
	)

	for _, b := range m.Content {
		switch b.Type {
		case anchor.BlockText:
			text.WriteString(b.Text)
		case anchor.BlockImage:
			if b.Source == nil {
				return nil, fmt.Errorf("validation_error: image block missing source")
			}
			if text.Len() > 0 {
				parts = append(parts, openaiwire.ContentPart{Type: "text", Text: text.String()})
				text.Reset()
			}
			parts = append(parts, openaiwire.ContentPart{
				Type: "image_url",
				ImageURL: &openaiwire.ImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", b.Source.MediaType, b.Source.Data),
				},
			})
		case anchor.BlockToolResult:
			content := stringifyToolResult(b)
			tools = append(tools, openaiwire.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: b.ToolUseID,
			})
		default:
			return nil, fmt.Errorf("validation_error: unsupported user block type %q", b.Type)
		}
	}

	var msgs []openaiwire.Message

	if len(parts) > 0 {
		if text.Len() > 0 {
			parts = append(parts, openaiwire.ContentPart{Type: "text", Text: text.String()})
		}
		msgs = append(msgs, openaiwire.Message{Role: "user", Parts: parts})
	} else if text.Len() > 0 {
		msgs = append(msgs, openaiwire.Message{Role: "user", Content: text.String()})
	}

	msgs = append(msgs, tools...)

	return msgs, nil
}

func flattenAssistantMessage(m anchor.Message) openaiwire.Message {
	var (
		text      strings.Builder
		toolCalls []openaiwire.ToolCall
	)

	for _, b := range m.Content {
		switch b.Type {
		case anchor.BlockText:
			text.WriteString(b.Text)
		case anchor.BlockToolUse:
			args := "{}"
			if len(b.Input) > 0 {
				args = string(b.Input)
			}
			toolCalls = append(toolCalls, openaiwire.ToolCall{
				ID:   anchorToolIDToOpenAI(b.ID),
				Type: "function",
				Function: openaiwire.FunctionCall{
					Name:      b.Name,
					Arguments: args,
				},
			})
		}
	}

	return openaiwire.Message{Role: "assistant", Content: text.String(), ToolCalls: toolCalls}
}

// stringifyToolResult renders a tool_result block's content as a string,
// folding is_error into a prefix exactly as spec.md §4.1 step 2 requires.
func stringifyToolResult(b anchor.Block) string {
	var content string

	if len(b.Content) > 0 {
		var asString string
		if err := json.Unmarshal(b.Content, &asString); err == nil {
			content = asString
		} else {
			content = string(b.Content)
		}
	}

	if b.IsError {
		return "Error: " + content
	}

	return content
}

func convertToolChoice(raw json.RawMessage) (any, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var typed struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, fmt.Errorf("validation_error: malformed tool_choice: %w", err)
	}

	if typed.Type == "tool" {
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": typed.Name},
		}, nil
	}

	return typed.Type, nil
}

func anchorToolIDToOpenAI(id string) string {
	if strings.HasPrefix(id, "toolu_") {
		return "call_" + strings.TrimPrefix(id, "toolu_")
	}
	return id
}

// droppedParams inspects the raw request body for unknown top-level keys
// without a second full struct decode, using gjson to walk the object.
func droppedParams(rawBody []byte) []string {
	if !gjson.ValidBytes(rawBody) {
		return nil
	}

	var dropped []string
	gjson.ParseBytes(rawBody).ForEach(func(key, _ gjson.Result) bool {
		if !knownTopLevelFields[key.String()] {
			dropped = append(dropped, key.String())
		}
		return true
	})

	return dropped
}
