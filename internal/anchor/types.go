// Package anchor defines the wire types for the Anchor protocol, the
// block-oriented streaming chat format spoken by the coding-agent client on
// the proxy's south-facing interface.
package anchor

import "encoding/json"

// Request is the body of a POST /v1/messages call.
type Request struct {
	Model         string         `json:"model"`
	MaxTokens     int            `json:"max_tokens"`
	Messages      []Message      `json:"messages"`
	System        *SystemField   `json:"system,omitempty"`
	Tools         []Tool         `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	Stream        bool           `json:"stream"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Message is one turn of the conversation. Content is either a plain string
// or an array of Blocks; UnmarshalJSON on Message normalizes both into
// Blocks so downstream code only ever deals with one shape.
type Message struct {
	Role    string  `json:"role"`
	Content []Block `json:"content"`
}

// SystemField accepts either a bare string or an array of text blocks.
type SystemField struct {
	Text   string
	Blocks []Block
}

func (s *SystemField) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Text = str
		return nil
	}

	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	s.Blocks = blocks

	return nil
}

// Flatten returns the system content as a single string, concatenating
// array-form text parts with double newlines per the Request Transformer's
// system-folding rule.
func (s *SystemField) Flatten() string {
	if s == nil {
		return ""
	}
	if s.Text != "" || len(s.Blocks) == 0 {
		return s.Text
	}

	out := ""
	for i, b := range s.Blocks {
		if b.Type != BlockText {
			continue
		}
		if i > 0 && out != "" {
			out += "\n\n"
		}
		out += b.Text
	}

	return out
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.Role = raw.Role

	if len(raw.Content) == 0 {
		return nil
	}

	var str string
	if err := json.Unmarshal(raw.Content, &str); err == nil {
		m.Content = []Block{{Type: BlockText, Text: str}}
		return nil
	}

	var blocks []Block
	if err := json.Unmarshal(raw.Content, &blocks); err != nil {
		return err
	}
	m.Content = blocks

	return nil
}

// Tool is an Anchor tool declaration.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}
