package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/claudish/claudish/internal/anchor"
	"github.com/claudish/claudish/internal/openaiwire"
)

// Machine drives State transitions. It holds only a logger; all mutable
// state lives in the State value passed to Step.
type Machine struct {
	logger *slog.Logger
}

func NewMachine(logger *slog.Logger) *Machine {
	return &Machine{logger: logger}
}

// Step consumes one backend chunk and returns the events it produces. It is
// the literal step function spec.md §9 calls for: State×Chunk → State×[]Event,
// with State mutated in place (the HTTP layer owns the State value and loops
// calling Step once per SSE line).
func (m *Machine) Step(state *State, chunk openaiwire.Chunk) []Event {
	if state.Closed() {
		return nil
	}

	var events []Event

	if state.MessageID == "" && chunk.ID != "" {
		state.MessageID = chunk.ID
	}
	if state.Model == "" && chunk.Model != "" {
		state.Model = chunk.Model
	}

	if !state.messageStarted {
		events = append(events, messageStartEvent(state))
		state.messageStarted = true
	}

	if chunk.Usage != nil {
		state.inputTokensSeen = chunk.Usage.PromptTokens
		state.outputTokensSeen = chunk.Usage.CompletionTokens
		state.usageSeen = true
	}

	if len(chunk.Choices) == 0 {
		return events
	}

	choice := chunk.Choices[0]
	events = append(events, m.handleDelta(state, choice.Delta)...)

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		events = append(events, m.finish(state, *choice.FinishReason)...)
	}

	return events
}

// StepDone handles the data: [DONE] sentinel. If finish has already run
// (message_stop emitted) this is a no-op per spec.md §4.2.
func (m *Machine) StepDone(state *State) []Event {
	if state.Closed() {
		return nil
	}
	if state.stopReason != "" {
		return nil
	}

	return m.finish(state, "")
}

// StepStreamError handles a backend SSE body ending without a finish_reason
// or a [DONE] sentinel — e.g. the upstream connection drops mid-response. It
// is a no-op if the stream already terminated normally (finish/StepDone
// already ran). Per spec.md §7, a mid-stream failure closes any still-open
// content blocks, then emits exactly one error event followed by
// message_stop; unlike finish it never emits message_delta, since no usable
// stop_reason or usage total exists for a stream that never completed.
func (m *Machine) StepStreamError(state *State, message string) []Event {
	if state.Closed() {
		return nil
	}

	var events []Event

	for _, slot := range state.toolOrder {
		tb := state.toolBlocks[slot]
		if tb.closed {
			continue
		}
		events = append(events, contentBlockStopEvent(tb.blockIndex))
		tb.closed = true
	}
	if state.textBlock.open {
		events = append(events, contentBlockStopEvent(state.textBlock.index))
		state.textBlock.open = false
	}
	if state.thinkingBlock.open {
		events = append(events, contentBlockStopEvent(state.thinkingBlock.index))
		state.thinkingBlock.open = false
	}

	events = append(events, errorEvent("api_error", message))
	events = append(events, messageStopEvent())
	state.Close()

	return events
}

// handleDelta dispatches one delta, prioritizing tool calls over
// reasoning/text content when both are present, per the teacher's
// ConvertOpenAIStyleToAnthropicStream and spec.md §4.2's tool-handling rule.
// Reasoning and text content are otherwise independent, both-emitted fields
// (a backend may set both in the same delta), so when neither is a tool
// call, reasoning is routed through the active policy first and then the
// text delta is emitted, matching
// bluenoah1991-cc-thinking-hook/cc-ification-hook/convert_response.go's
// processStreamDelta ordering.
func (m *Machine) handleDelta(state *State, delta openaiwire.Delta) []Event {
	if len(delta.ToolCalls) > 0 {
		return m.handleToolCalls(state, delta.ToolCalls)
	}

	var events []Event

	if reasoning := delta.ReasoningText(); reasoning != "" {
		events = append(events, m.handleReasoning(state, reasoning)...)
	}
	if delta.Content != "" {
		events = append(events, m.handleText(state, delta.Content)...)
	}

	return events
}

func (m *Machine) handleText(state *State, text string) []Event {
	var events []Event

	if state.thinkingBlock.open {
		events = append(events, contentBlockStopEvent(state.thinkingBlock.index))
		state.thinkingBlock.open = false
	}

	if !state.textBlock.open {
		state.textBlock.index = state.nextBlockIndex
		state.nextBlockIndex++
		state.textBlock.open = true
		events = append(events, contentBlockStartEvent(state.textBlock.index, anchor.ContentBlockPayload{Type: "text", Text: ""}))
	}

	events = append(events, contentBlockDeltaEvent(state.textBlock.index, anchor.Delta{Type: "text_delta", Text: text}))
	state.outputCharsSeen += len(text)

	return events
}

func (m *Machine) handleReasoning(state *State, reasoning string) []Event {
	switch state.Policy {
	case ReasoningSuppress:
		return nil
	case ReasoningAsThinking:
		return m.handleThinking(state, reasoning)
	default: // ReasoningAsText
		return m.handleText(state, reasoning)
	}
}

func (m *Machine) handleThinking(state *State, text string) []Event {
	var events []Event

	if !state.thinkingBlock.open {
		state.thinkingBlock.index = state.nextBlockIndex
		state.nextBlockIndex++
		state.thinkingBlock.open = true
		events = append(events, contentBlockStartEvent(state.thinkingBlock.index, anchor.ContentBlockPayload{Type: "thinking"}))
	}

	events = append(events, contentBlockDeltaEvent(state.thinkingBlock.index, anchor.Delta{Type: "thinking_delta", Thinking: text}))
	state.outputCharsSeen += len(text)

	return events
}

// handleToolCalls processes delta.tool_calls, closing any open text/thinking
// block before the first tool block opens per spec.md §4.2.
func (m *Machine) handleToolCalls(state *State, calls []openaiwire.ToolCall) []Event {
	var events []Event

	if state.textBlock.open {
		events = append(events, contentBlockStopEvent(state.textBlock.index))
		state.textBlock.open = false
	}
	if state.thinkingBlock.open {
		events = append(events, contentBlockStopEvent(state.thinkingBlock.index))
		state.thinkingBlock.open = false
	}

	for _, call := range calls {
		events = append(events, m.handleOneToolCall(state, call)...)
	}

	return events
}

func (m *Machine) handleOneToolCall(state *State, call openaiwire.ToolCall) []Event {
	slot := 0
	if call.Index != nil {
		slot = *call.Index
	}

	var events []Event

	tb, seen := state.toolBlocks[slot]
	if !seen {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("toolu_%d", state.nextBlockIndex)
		}

		tb = &toolBlockState{
			blockIndex: state.nextBlockIndex,
			id:         anchorizeToolID(id),
			name:       call.Function.Name,
		}
		state.nextBlockIndex++
		state.toolBlocks[slot] = tb
		state.toolOrder = append(state.toolOrder, slot)

		events = append(events, contentBlockStartEvent(tb.blockIndex, anchor.ContentBlockPayload{
			Type:  "tool_use",
			ID:    tb.id,
			Name:  tb.name,
			Input: map[string]any{},
		}))
		tb.started = true
	} else if call.Function.Name != "" {
		tb.name += call.Function.Name
	}

	if call.Function.Arguments != "" {
		tb.argChars += call.Function.Arguments
		state.outputCharsSeen += len(call.Function.Arguments)
		events = append(events, contentBlockDeltaEvent(tb.blockIndex, anchor.Delta{Type: "input_json_delta", PartialJSON: call.Function.Arguments}))
	}

	return events
}

// anchorizeToolID rewrites an OpenAI-style "call_" tool id to the Anchor
// "toolu_" convention, matching the teacher's convertToolCallID.
func anchorizeToolID(id string) string {
	const callPrefix = "call_"
	const anchorPrefix = "toolu_"

	if len(id) >= len(anchorPrefix) && id[:len(anchorPrefix)] == anchorPrefix {
		return id
	}
	if len(id) >= len(callPrefix) && id[:len(callPrefix)] == callPrefix {
		return anchorPrefix + id[len(callPrefix):]
	}

	return anchorPrefix + id
}

var stopReasonMapping = map[string]string{
	"stop":           anchor.StopEndTurn,
	"length":         anchor.StopMaxTokens,
	"tool_calls":     anchor.StopToolUse,
	"function_call":  anchor.StopToolUse,
	"content_filter": anchor.StopSequenceLabel,
}

func convertStopReason(reason string) string {
	if mapped, ok := stopReasonMapping[reason]; ok {
		return mapped
	}
	return anchor.StopEndTurn
}

// finish closes every open block, validates accumulated tool-call JSON,
// emits message_delta and message_stop, and marks the stream closed.
func (m *Machine) finish(state *State, reason string) []Event {
	var events []Event

	for _, slot := range state.toolOrder {
		tb := state.toolBlocks[slot]
		if tb.closed {
			continue
		}

		if !json.Valid([]byte(tb.argChars)) {
			m.logger.Warn("tool call arguments did not parse as JSON", "tool", tb.name, "id", tb.id)
		}

		events = append(events, contentBlockStopEvent(tb.blockIndex))
		tb.closed = true
	}

	if state.textBlock.open {
		events = append(events, contentBlockStopEvent(state.textBlock.index))
		state.textBlock.open = false
	}
	if state.thinkingBlock.open {
		events = append(events, contentBlockStopEvent(state.thinkingBlock.index))
		state.thinkingBlock.open = false
	}

	stopReason := convertStopReason(reason)
	state.stopReason = stopReason

	outputTokens := state.outputTokensSeen
	if !state.usageSeen {
		outputTokens = estimateTokens(state)
	}

	usagePayload := anchor.Usage{
		InputTokens:              state.inputTokensSeen,
		OutputTokens:             outputTokens,
		CacheCreationInputTokens: state.cacheCreationTokens,
		CacheReadInputTokens:     state.cacheReadTokens,
	}

	var cacheCreation *anchor.CacheCreation
	if state.cacheCreationTokens != nil {
		cacheCreation = &anchor.CacheCreation{Ephemeral5mInputTokens: *state.cacheCreationTokens}
	}

	events = append(events, messageDeltaEvent(stopReason, usagePayload, cacheCreation))
	events = append(events, messageStopEvent())

	state.Close()

	return events
}

// estimateTokens falls back to the 4-chars-per-token heuristic spec.md §4.4
// mandates when the backend never reports usage.
func estimateTokens(state *State) int {
	return state.outputCharsSeen / 4
}
