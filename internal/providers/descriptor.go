// Package providers implements the Provider Registry: it resolves a model
// identifier to a backend descriptor and carries out the health-check and
// context-window discovery probing local-provider backends need before
// first use. Grounded on the teacher's internal/providers/registry.go
// (Registry.GetByDomain), generalized from a fixed domain→name map to
// spec.md §4.5's full prefix/URL/custom-base-URL/default resolution order.
package providers

import "time"

// Capabilities gate which request features a backend can fulfill, per
// spec.md §4.5 step 4.
type Capabilities struct {
	SupportsTools     bool
	SupportsVision    bool
	SupportsStreaming bool
	SupportsJSONMode  bool
}

// Descriptor is the ProviderDescriptor from spec.md §3.
type Descriptor struct {
	Name         string
	BaseURL      string
	APIPath      string
	Prefixes     []string
	APIKeyEnv    string
	Capabilities Capabilities

	// Local-only fields used by the health/context-window probes.
	IsLocal          bool
	HealthPath       string
	ContextWindowPath string
	StartCommandHint string
}

// HealthTimeout and ContextTimeout are the probe deadlines from spec.md §5.
const (
	HealthTimeout  = 5 * time.Second
	ContextTimeout = 3 * time.Second

	DefaultContextWindow = 8192
)
