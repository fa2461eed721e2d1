package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tidwall/gjson"
)

// healthHandler answers GET /health, grounded on the teacher's HealthHandler.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// countTokensHandler answers POST /v1/messages/count_tokens. It extracts the
// system prompt and message text with gjson rather than a full anchor.Request
// round-trip (the dispatcher already owns that parse for the real request
// path), then counts with the same cl100k_base encoding the teacher's
// countInputTokens used.
func countTokensHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	text := extractCountableText(body)

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		http.Error(w, "failed to load token encoder", http.StatusInternalServerError)
		return
	}

	tokens := len(enc.Encode(text, nil, nil))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"input_tokens": tokens})
}

// extractCountableText concatenates the system prompt and every message's
// text content, skipping tool schemas and image data which do not meaningfully
// contribute to cl100k_base's token count.
func extractCountableText(body []byte) string {
	var text []byte

	if sys := gjson.GetBytes(body, "system"); sys.Exists() {
		text = append(text, sys.String()...)
		text = append(text, ' ')
	}

	gjson.GetBytes(body, "messages").ForEach(func(_, msg gjson.Result) bool {
		content := msg.Get("content")
		if content.IsArray() {
			content.ForEach(func(_, block gjson.Result) bool {
				if t := block.Get("text"); t.Exists() {
					text = append(text, t.String()...)
					text = append(text, ' ')
				}
				return true
			})
		} else {
			text = append(text, content.String()...)
			text = append(text, ' ')
		}
		return true
	})

	return string(text)
}

// modelsHandler answers GET /v1/models with a synthetic list containing the
// currently routable default model, per spec.md §6.
func modelsHandler(defaultModel func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model := defaultModel()
		if model == "" {
			model = "default"
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": model, "object": "model"},
			},
		})
	}
}
