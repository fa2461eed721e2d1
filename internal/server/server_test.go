package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_ReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	healthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestExtractCountableText_PullsSystemAndMessageText(t *testing.T) {
	body := []byte(`{
		"system": "you are helpful",
		"messages": [
			{"role": "user", "content": "hello there"},
			{"role": "assistant", "content": [{"type": "text", "text": "hi back"}]}
		]
	}`)

	text := extractCountableText(body)
	assert.Contains(t, text, "you are helpful")
	assert.Contains(t, text, "hello there")
	assert.Contains(t, text, "hi back")
}

func TestCountTokensHandler_ReturnsPositiveCount(t *testing.T) {
	body := `{"model":"x","messages":[{"role":"user","content":"hello world, this is a test message"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages/count_tokens", strings.NewReader(body))
	rec := httptest.NewRecorder()

	countTokensHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Greater(t, out["input_tokens"], 0)
}

func TestModelsHandler_ReturnsDefaultModel(t *testing.T) {
	h := modelsHandler(func() string { return "ollama/qwen2.5" })

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()

	h(rec, req)

	var out struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, "ollama/qwen2.5", out.Data[0]["id"])
}

func TestModelsHandler_FallsBackWhenNoDefaultModel(t *testing.T) {
	h := modelsHandler(func() string { return "" })

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()

	h(rec, req)

	var out struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "default", out.Data[0]["id"])
}
