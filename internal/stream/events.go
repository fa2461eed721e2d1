package stream

import (
	"encoding/json"
	"fmt"

	"github.com/claudish/claudish/internal/anchor"
)

// Event is one emitted Anchor SSE record, paired with its event name so the
// HTTP writer can frame it as "event: <name>\ndata: <json>\n\n".
type Event struct {
	Type string
	Data any
}

// FormatSSE renders an Event in the wire framing spec.md §6 describes.
// Grounded on the teacher's base.go:FormatSSEEvent.
func FormatSSE(e Event) []byte {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return []byte("event: error\ndata: {\"type\":\"api_error\",\"message\":\"failed to marshal event\"}\n\n")
	}

	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, data))
}

func messageStartEvent(state *State) Event {
	zero := 0
	return Event{
		Type: anchor.EventMessageStart,
		Data: map[string]any{
			"type": anchor.EventMessageStart,
			"message": anchor.MessageStartPayload{
				ID:      state.MessageID,
				Type:    "message",
				Role:    "assistant",
				Model:   state.Model,
				Content: []any{},
				Usage:   anchor.Usage{CacheCreationInputTokens: &zero, CacheReadInputTokens: &zero},
			},
		},
	}
}

func contentBlockStartEvent(index int, block anchor.ContentBlockPayload) Event {
	return Event{
		Type: anchor.EventContentBlockStart,
		Data: map[string]any{
			"type":          anchor.EventContentBlockStart,
			"index":         index,
			"content_block": block,
		},
	}
}

func contentBlockDeltaEvent(index int, delta anchor.Delta) Event {
	return Event{
		Type: anchor.EventContentBlockDelta,
		Data: map[string]any{
			"type":  anchor.EventContentBlockDelta,
			"index": index,
			"delta": delta,
		},
	}
}

func contentBlockStopEvent(index int) Event {
	return Event{
		Type: anchor.EventContentBlockStop,
		Data: map[string]any{
			"type":  anchor.EventContentBlockStop,
			"index": index,
		},
	}
}

func messageDeltaEvent(stopReason string, usage anchor.Usage, cacheCreation *anchor.CacheCreation) Event {
	return Event{Type: anchor.EventMessageDelta, Data: messageDeltaPayload(stopReason, usage, cacheCreation)}
}

// messageDeltaPayload builds the final message_delta body, optionally
// folding in the cache_creation breakdown mirrored from
// cache_creation_input_tokens on "create" turns (spec.md §4.4).
func messageDeltaPayload(stopReason string, usage anchor.Usage, cacheCreation *anchor.CacheCreation) map[string]any {
	usageMap := map[string]any{
		"output_tokens": usage.OutputTokens,
		"input_tokens":  usage.InputTokens,
	}
	if usage.CacheCreationInputTokens != nil {
		usageMap["cache_creation_input_tokens"] = *usage.CacheCreationInputTokens
	}
	if usage.CacheReadInputTokens != nil {
		usageMap["cache_read_input_tokens"] = *usage.CacheReadInputTokens
	}
	if cacheCreation != nil {
		usageMap["cache_creation"] = cacheCreation
	}

	return map[string]any{
		"type": anchor.EventMessageDelta,
		"delta": map[string]any{
			"stop_reason":   stopReason,
			"stop_sequence": nil,
		},
		"usage": usageMap,
	}
}

func messageStopEvent() Event {
	return Event{Type: anchor.EventMessageStop, Data: map[string]any{"type": anchor.EventMessageStop}}
}

func pingEvent() Event {
	return Event{Type: anchor.EventPing, Data: map[string]any{"type": anchor.EventPing}}
}

func errorEvent(errType, message string) Event {
	return Event{
		Type: anchor.EventError,
		Data: map[string]any{
			"type": anchor.EventError,
			"error": anchor.ErrorPayload{
				Type:    errType,
				Message: message,
			},
		},
	}
}
