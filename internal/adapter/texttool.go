package adapter

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/claudish/claudish/internal/openaiwire"
	"github.com/claudish/claudish/internal/providers"
)

// toolCallFence matches a fenced ```tool_call {"name":..., "arguments":...}```
// block some backends emit in plain text when they have no native function
// calling. This is the capability-gating fallback spec.md §4.5 step 4
// alludes to: "strip tools from the outbound payload" on the way out, and
// here, synthesize a ToolCall delta out of the model's inline JSON on the
// way in so the streaming state machine still sees a normal tool_calls
// fragment.
var toolCallFence = regexp.MustCompile("(?s)```tool_call\\s*(\\{.*?\\})\\s*```")

// TextToolCallAdapter strips tools from outbound requests to
// tool-incapable backends and scans inbound text deltas for the fenced
// convention, converting any match into a synthetic tool_calls fragment.
type TextToolCallAdapter struct {
	buffer strings.Builder
	slot   int
}

func NewTextToolCallAdapter() *TextToolCallAdapter {
	return &TextToolCallAdapter{}
}

func (a *TextToolCallAdapter) PrepareRequest(req *openaiwire.Request, caps providers.Capabilities) {
	req.Tools = nil
	req.ToolChoice = nil
	stripImageParts(req)
}

func (a *TextToolCallAdapter) TransformDelta(delta *openaiwire.Delta) {
	if delta.Content == "" {
		return
	}

	a.buffer.WriteString(delta.Content)

	match := toolCallFence.FindStringSubmatchIndex(a.buffer.String())
	if match == nil {
		return
	}

	buffered := a.buffer.String()
	before := buffered[:match[0]]
	args := buffered[match[2]:match[3]]
	after := buffered[match[1]:]

	name, cleanArgs := extractNameAndArguments(args)

	idx := a.slot
	a.slot++

	delta.Content = before
	delta.ToolCalls = []openaiwire.ToolCall{
		{
			Index: &idx,
			ID:    "call_" + strconv.Itoa(idx),
			Type:  "function",
			Function: openaiwire.FunctionCall{
				Name:      name,
				Arguments: cleanArgs,
			},
		},
	}

	a.buffer.Reset()
	a.buffer.WriteString(after)
}

// extractNameAndArguments pulls the "name" and "arguments" fields out of the
// fenced JSON object so name can be promoted to FunctionCall.Name and
// arguments forwarded as-is to FunctionCall.Arguments, matching the shape a
// native tool-call delta would carry. If raw doesn't parse as a JSON object,
// or carries no "arguments" field of its own (the model fenced a bare
// arguments object with no envelope), the whole blob is passed through as
// arguments.
func extractNameAndArguments(raw string) (name string, arguments string) {
	var envelope struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return "", raw
	}
	if envelope.Arguments == nil {
		return envelope.Name, raw
	}

	return envelope.Name, string(envelope.Arguments)
}

func (a *TextToolCallAdapter) Reset() {
	a.buffer.Reset()
	a.slot = 0
}
