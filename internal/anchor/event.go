package anchor

// Event names for the discriminated AnchorEvent union emitted over SSE.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Stop reasons allowed in message_delta per spec.md §3.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens     = "max_tokens"
	StopToolUse       = "tool_use"
	StopSequenceLabel = "stop_sequence"
)

// Usage mirrors the four-field usage record carried on message_start and
// message_delta.
type Usage struct {
	InputTokens              int  `json:"input_tokens"`
	OutputTokens             int  `json:"output_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens,omitempty"`
}

// CacheCreation mirrors the optional ephemeral-TTL breakdown on create turns.
type CacheCreation struct {
	Ephemeral5mInputTokens int `json:"ephemeral_5m_input_tokens"`
}

// MessageStartPayload is the "message" object nested in a message_start event.
type MessageStartPayload struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Role         string `json:"role"`
	Model        string `json:"model"`
	Content      []any  `json:"content"`
	StopReason   any    `json:"stop_reason"`
	StopSequence any    `json:"stop_sequence"`
	Usage        Usage  `json:"usage"`
}

// ContentBlockPayload is the content_block object nested in content_block_start.
type ContentBlockPayload struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// Delta is the delta object nested in content_block_delta.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
}

// MessageDeltaPayload is the delta object nested in a message_delta event.
type MessageDeltaPayload struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// ErrorPayload is the {type, message} body of both error events and
// non-streaming error responses.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
