package providers

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Resolve_LocalPrefix(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://127.0.0.1:11434")

	registry := NewRegistry()

	resolved, err := registry.Resolve("ollama/llama3.1")
	require.NoError(t, err)
	assert.Equal(t, "ollama", resolved.Descriptor.Name)
	assert.Equal(t, "llama3.1", resolved.Model)
	assert.Equal(t, "http://127.0.0.1:11434", resolved.BaseURL)
}

func TestRegistry_Resolve_LocalPrefix_MissingBaseURL(t *testing.T) {
	os.Unsetenv("OLLAMA_BASE_URL")
	os.Unsetenv("OLLAMA_HOST")

	registry := NewRegistry()

	_, err := registry.Resolve("ollama/llama3.1")
	assert.Error(t, err, "should error when no base URL is configured for the prefix")

	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestRegistry_Resolve_AbsoluteURL(t *testing.T) {
	registry := NewRegistry()

	resolved, err := registry.Resolve("https://my-server.example.com/v1/chat/my-model")
	require.NoError(t, err)
	assert.Equal(t, "custom-url", resolved.Descriptor.Name)
	assert.Equal(t, "https://my-server.example.com", resolved.BaseURL)
	assert.Equal(t, "my-model", resolved.Model)
}

func TestRegistry_Resolve_CustomBaseURL(t *testing.T) {
	t.Setenv("CLAUDISH_BASE_URL", "http://localhost:9000")

	registry := NewRegistry()

	resolved, err := registry.Resolve("some-model")
	require.NoError(t, err)
	assert.Equal(t, "custom-base-url", resolved.Descriptor.Name)
	assert.Equal(t, "http://localhost:9000", resolved.BaseURL)
	assert.Equal(t, "some-model", resolved.Model)
}

func TestRegistry_Resolve_DefaultHostedAggregator(t *testing.T) {
	os.Unsetenv("CLAUDISH_BASE_URL")

	registry := NewRegistry()

	resolved, err := registry.Resolve("anthropic/claude-3.5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", resolved.Descriptor.Name)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", resolved.Model)
}

func TestAPIKey_ProviderSpecificEnvVar(t *testing.T) {
	t.Setenv("OLLAMA_API_KEY", "secret")

	d := localDescriptors[0]
	assert.Equal(t, "secret", APIKey(d))
}

func TestAPIKey_LocalFallback(t *testing.T) {
	os.Unsetenv("OLLAMA_API_KEY")
	t.Setenv("CLAUDISH_LOCAL_API_KEY", "fallback")

	d := localDescriptors[0]
	assert.Equal(t, "fallback", APIKey(d))
}
