package anchor

import "encoding/json"

// Block kinds that can appear in a Message's content array.
const (
	BlockText       = "text"
	BlockImage      = "image"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockThinking   = "thinking"
)

// Block is a tagged-variant union over the Anchor content block kinds. Only
// the fields relevant to its Type are populated; this mirrors spec.md §3's
// "Block is one of: text, image, tool_use, tool_result" definition as a
// single Go struct instead of an interface, since every caller already
// switches on Type and the teacher's own AnthropicContent struct does the
// same thing for the reverse direction.
type Block struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ImageSource carries the inline base64 payload of an image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}
