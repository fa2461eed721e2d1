package providers

import "os"

// hostedDescriptor is the default OpenRouter-style hosted aggregator,
// grounded on the teacher's OpenRouterProvider (the teacher's default
// provider for model ids with no local prefix).
var hostedDescriptor = Descriptor{
	Name:      "openrouter",
	BaseURL:   "https://openrouter.ai/api/v1",
	APIPath:   "/chat/completions",
	APIKeyEnv: "OPENROUTER_API_KEY",
	Capabilities: Capabilities{
		SupportsTools:     true,
		SupportsVision:    true,
		SupportsStreaming: true,
		SupportsJSONMode:  true,
	},
}

// customBaseURLEnv is CLAUDISH_BASE_URL from spec.md §6.
const customBaseURLEnv = "CLAUDISH_BASE_URL"

func customBaseURL() string {
	return os.Getenv(customBaseURLEnv)
}

// localGenericAPIKeyEnv is the generic fallback local credential,
// CLAUDISH_LOCAL_API_KEY.
const localGenericAPIKeyEnv = "CLAUDISH_LOCAL_API_KEY"

// APIKey resolves d's credential per spec.md §4.5 step 5: the
// provider-specific env var, falling back to the generic local key for
// local providers, and returning "" (no credential) if neither is set.
func APIKey(d Descriptor) string {
	if d.APIKeyEnv != "" {
		if v := os.Getenv(d.APIKeyEnv); v != "" {
			return v
		}
	}

	if d.IsLocal {
		return os.Getenv(localGenericAPIKeyEnv)
	}

	return ""
}
