package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

// localDescriptors is the table-driven set of local provider descriptors
// from SPEC_FULL.md §4's "Dispatcher and Local-Provider Handler" supplement:
// base URL env var, probe path, context-window path, capability defaults.
var localDescriptors = []Descriptor{
	{
		Name:              "ollama",
		Prefixes:          []string{"ollama/", "ollama:"},
		APIPath:           "/v1/chat/completions",
		IsLocal:           true,
		HealthPath:        "/api/tags",
		ContextWindowPath: "/api/show",
		APIKeyEnv:         "OLLAMA_API_KEY",
		StartCommandHint:  "ollama serve",
		Capabilities:      Capabilities{SupportsTools: true, SupportsStreaming: true},
	},
	{
		Name:              "lmstudio",
		Prefixes:          []string{"lmstudio/", "lmstudio:"},
		APIPath:           "/v1/chat/completions",
		IsLocal:           true,
		HealthPath:        "/v1/models",
		ContextWindowPath: "/v1/models",
		APIKeyEnv:         "LMSTUDIO_API_KEY",
		StartCommandHint:  "lms server start",
		Capabilities:      Capabilities{SupportsTools: true, SupportsStreaming: true},
	},
	{
		Name:              "vllm",
		Prefixes:          []string{"vllm/", "vllm:"},
		APIPath:           "/v1/chat/completions",
		IsLocal:           true,
		HealthPath:        "/v1/models",
		ContextWindowPath: "/v1/models",
		APIKeyEnv:         "VLLM_API_KEY",
		StartCommandHint:  "vllm serve <model>",
		Capabilities:      Capabilities{SupportsTools: true, SupportsStreaming: true},
	},
	{
		Name:              "mlx",
		Prefixes:          []string{"mlx/", "mlx:"},
		APIPath:           "/v1/chat/completions",
		IsLocal:           true,
		HealthPath:        "/v1/models",
		ContextWindowPath: "/v1/models",
		APIKeyEnv:         "MLX_API_KEY",
		StartCommandHint:  "mlx_lm.server",
		Capabilities:      Capabilities{SupportsTools: false, SupportsStreaming: true},
	},
}

// baseURLEnvVars names, per provider, the env vars spec.md §6 enumerates for
// its base URL, in precedence order.
var baseURLEnvVars = map[string][]string{
	"ollama":   {"OLLAMA_BASE_URL", "OLLAMA_HOST"},
	"lmstudio": {"LMSTUDIO_BASE_URL"},
	"vllm":     {"VLLM_BASE_URL"},
	"mlx":      {"MLX_BASE_URL"},
}

func localBaseURL(name string) string {
	for _, envVar := range baseURLEnvVars[name] {
		if v := os.Getenv(envVar); v != "" {
			return v
		}
	}
	return ""
}

// Prober issues the health and context-window discovery probes from
// spec.md §4.5 steps 2-3.
type Prober struct {
	client *http.Client
}

func NewProber() *Prober {
	return &Prober{client: &http.Client{}}
}

// ConnectionError is returned when a local provider's health probe fails; it
// carries the canonical start-command guidance spec.md §4.5 requires.
type ConnectionError struct {
	Provider string
	BaseURL  string
	Hint     string
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach %s at %s (start it with `%s`): %v", e.Provider, e.BaseURL, e.Hint, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// HealthCheck probes d's HealthPath with a 5s timeout.
func (p *Prober) HealthCheck(ctx context.Context, d Descriptor, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+d.HealthPath, nil)
	if err != nil {
		return fmt.Errorf("build health probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &ConnectionError{Provider: d.Name, BaseURL: baseURL, Hint: d.StartCommandHint, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ConnectionError{Provider: d.Name, BaseURL: baseURL, Hint: d.StartCommandHint, Cause: fmt.Errorf("probe returned status %d", resp.StatusCode)}
	}

	return nil
}

// ContextWindow probes d's ContextWindowPath with a 3s timeout, returning
// DefaultContextWindow if discovery fails or the provider doesn't expose it.
func (p *Prober) ContextWindow(ctx context.Context, d Descriptor, baseURL, model string) int {
	ctx, cancel := context.WithTimeout(ctx, ContextTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+d.ContextWindowPath, nil)
	if err != nil {
		return DefaultContextWindow
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return DefaultContextWindow
	}
	defer resp.Body.Close()

	var body struct {
		ContextLength int `json:"context_length"`
		ModelInfo     struct {
			ContextLength int `json:"llama.context_length"`
		} `json:"model_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return DefaultContextWindow
	}

	if body.ModelInfo.ContextLength > 0 {
		return body.ModelInfo.ContextLength
	}
	if body.ContextLength > 0 {
		return body.ContextLength
	}

	return DefaultContextWindow
}
