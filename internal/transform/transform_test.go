package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claudish/claudish/internal/anchor"
)

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRequest_RejectsEmptyMessages(t *testing.T) {
	_, err := Request(&anchor.Request{Model: "local/qwen"}, []byte(`{}`))
	assert.Error(t, err)
}

func TestRequest_FlattensSystemAndDefaultsTemperature(t *testing.T) {
	req := &anchor.Request{
		Model:    "local/qwen",
		System:   &anchor.SystemField{Text: "be terse"},
		Messages: []anchor.Message{{Role: "user", Content: []anchor.Block{{Type: anchor.BlockText, Text: "hi"}}}},
	}

	result, err := Request(req, []byte(`{"model":"x","messages":[]}`))
	require.NoError(t, err)

	require.Len(t, result.Request.Messages, 2)
	assert.Equal(t, "system", result.Request.Messages[0].Role)
	assert.Equal(t, "be terse", result.Request.Messages[0].Content)
	assert.Equal(t, "user", result.Request.Messages[1].Role)
	assert.Equal(t, "hi", result.Request.Messages[1].Content)
	require.NotNil(t, result.Request.Temperature)
	assert.Equal(t, 1.0, *result.Request.Temperature)
}

func TestRequest_HonorsExplicitTemperature(t *testing.T) {
	temp := 0.2
	req := &anchor.Request{
		Model:       "local/qwen",
		Temperature: &temp,
		Messages:    []anchor.Message{{Role: "user", Content: []anchor.Block{{Type: anchor.BlockText, Text: "hi"}}}},
	}

	result, err := Request(req, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0.2, *result.Request.Temperature)
}

func TestRequest_RejectsUnsupportedRole(t *testing.T) {
	req := &anchor.Request{
		Model:    "local/qwen",
		Messages: []anchor.Message{{Role: "system", Content: []anchor.Block{{Type: anchor.BlockText, Text: "nope"}}}},
	}

	_, err := Request(req, []byte(`{}`))
	assert.Error(t, err)
}

func TestFlattenUserMessage_TextOnly(t *testing.T) {
	msgs, err := flattenUserMessage(anchor.Message{
		Role:    "user",
		Content: []anchor.Block{{Type: anchor.BlockText, Text: "hello"}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Empty(t, msgs[0].Parts)
}

func TestFlattenUserMessage_ImageProducesParts(t *testing.T) {
	msgs, err := flattenUserMessage(anchor.Message{
		Role: "user",
		Content: []anchor.Block{
			{Type: anchor.BlockText, Text: "what is this"},
			{Type: anchor.BlockImage, Source: &anchor.ImageSource{MediaType: "image/png", Data: "abc123"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 2)
	assert.Equal(t, "text", msgs[0].Parts[0].Type)
	assert.Equal(t, "image_url", msgs[0].Parts[1].Type)
	assert.Equal(t, "data:image/png;base64,abc123", msgs[0].Parts[1].ImageURL.URL)
}

func TestFlattenUserMessage_ImageMissingSourceIsError(t *testing.T) {
	_, err := flattenUserMessage(anchor.Message{
		Role:    "user",
		Content: []anchor.Block{{Type: anchor.BlockImage}},
	})
	assert.Error(t, err)
}

func TestFlattenUserMessage_ToolResultBecomesToolMessage(t *testing.T) {
	msgs, err := flattenUserMessage(anchor.Message{
		Role: "user",
		Content: []anchor.Block{
			{Type: anchor.BlockToolResult, ToolUseID: "toolu_1", Content: mustRaw(t, "42 degrees")},
		},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "tool", msgs[0].Role)
	assert.Equal(t, "toolu_1", msgs[0].ToolCallID)
	assert.Equal(t, "42 degrees", msgs[0].Content)
}

func TestFlattenUserMessage_ToolResultErrorIsPrefixed(t *testing.T) {
	msgs, err := flattenUserMessage(anchor.Message{
		Role: "user",
		Content: []anchor.Block{
			{Type: anchor.BlockToolResult, ToolUseID: "toolu_1", Content: mustRaw(t, "boom"), IsError: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Error: boom", msgs[0].Content)
}

func TestFlattenAssistantMessage_TextAndToolUse(t *testing.T) {
	msg := flattenAssistantMessage(anchor.Message{
		Role: "assistant",
		Content: []anchor.Block{
			{Type: anchor.BlockText, Text: "checking..."},
			{Type: anchor.BlockToolUse, ID: "toolu_abc", Name: "get_weather", Input: mustRaw(t, map[string]string{"city": "nyc"})},
		},
	})

	assert.Equal(t, "checking...", msg.Content)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_abc", msg.ToolCalls[0].ID)
	assert.Equal(t, "get_weather", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"city":"nyc"}`, msg.ToolCalls[0].Function.Arguments)
}

func TestFlattenAssistantMessage_ToolUseWithoutInputDefaultsToEmptyObject(t *testing.T) {
	msg := flattenAssistantMessage(anchor.Message{
		Role:    "assistant",
		Content: []anchor.Block{{Type: anchor.BlockToolUse, ID: "toolu_x", Name: "noop"}},
	})

	assert.Equal(t, "{}", msg.ToolCalls[0].Function.Arguments)
}

func TestConvertToolChoice_StringPassesThrough(t *testing.T) {
	out, err := convertToolChoice(mustRaw(t, "auto"))
	require.NoError(t, err)
	assert.Equal(t, "auto", out)
}

func TestConvertToolChoice_NamedToolBecomesFunctionChoice(t *testing.T) {
	out, err := convertToolChoice(mustRaw(t, map[string]string{"type": "tool", "name": "get_weather"}))
	require.NoError(t, err)

	asMap, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "function", asMap["type"])
	fn := asMap["function"].(map[string]any)
	assert.Equal(t, "get_weather", fn["name"])
}

func TestConvertToolChoice_Malformed(t *testing.T) {
	_, err := convertToolChoice(json.RawMessage(`{"type": 5}`))
	assert.Error(t, err)
}

func TestAnchorToolIDToOpenAI(t *testing.T) {
	assert.Equal(t, "call_abc", anchorToolIDToOpenAI("toolu_abc"))
	assert.Equal(t, "bare", anchorToolIDToOpenAI("bare"))
}

func TestDroppedParams_ReportsUnknownTopLevelFields(t *testing.T) {
	body := []byte(`{"model":"x","messages":[],"top_k":5,"anthropic_version":"2023-06-01"}`)
	dropped := droppedParams(body)
	assert.ElementsMatch(t, []string{"top_k", "anthropic_version"}, dropped)
}

func TestDroppedParams_NoneWhenAllKnown(t *testing.T) {
	body := []byte(`{"model":"x","messages":[],"max_tokens":100}`)
	assert.Empty(t, droppedParams(body))
}

func TestDroppedParams_InvalidJSON(t *testing.T) {
	assert.Nil(t, droppedParams([]byte(`not json`)))
}

func TestIsIdentityPreamble(t *testing.T) {
	assert.True(t, isIdentityPreamble("I'm Claude, an AI assistant made by Anthropic."))
	assert.True(t, isIdentityPreamble("I am ChatGPT, an OpenAI model."))
	assert.False(t, isIdentityPreamble("Sure, here's the fix for that bug."))
}

func TestNormalizeTools_SanitizesInvalidNameCharacters(t *testing.T) {
	out, err := NormalizeTools([]anchor.Tool{
		{Name: "get weather!", Description: "lookup", InputSchema: mustRaw(t, map[string]any{"type": "object"})},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "get_weather_", out[0].Function.Name)
	assert.Equal(t, "function", out[0].Type)
}
