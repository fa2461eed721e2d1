package providers

import (
	"fmt"
	"net/url"
	"strings"
)

// Registry holds the known provider descriptors. It is read-only after
// process start; environment variables backing base URLs and credentials
// are re-read at lookup time, per spec.md §5. Grounded on the teacher's
// Registry.GetByDomain, generalized from a fixed domain→name map to
// spec.md §4.5 step 1's full prefix/URL/custom-base-URL/default order.
type Registry struct {
	local []Descriptor
}

// NewRegistry builds the registry with the built-in local provider
// descriptors from local.go.
func NewRegistry() *Registry {
	return &Registry{local: localDescriptors}
}

// Resolved is what Resolve returns: the chosen descriptor, its base URL, and
// the model name with any provider prefix stripped.
type Resolved struct {
	Descriptor Descriptor
	BaseURL    string
	Model      string
}

// Resolve implements spec.md §4.5 step 1's model-resolution order: prefix
// match, then absolute-URL model id, then a configured custom base URL,
// then the default hosted aggregator.
func (r *Registry) Resolve(modelID string) (Resolved, error) {
	for _, d := range r.local {
		for _, prefix := range d.Prefixes {
			if strings.HasPrefix(modelID, prefix) {
				base := localBaseURL(d.Name)
				if base == "" {
					return Resolved{}, &ConnectionError{
						Provider: d.Name,
						BaseURL:  "(not configured)",
						Hint:     d.StartCommandHint,
						Cause:    fmt.Errorf("no base URL configured for %s", d.Name),
					}
				}

				return Resolved{
					Descriptor: d,
					BaseURL:    base,
					Model:      strings.TrimPrefix(modelID, prefix),
				}, nil
			}
		}
	}

	if u, err := url.ParseRequestURI(modelID); err == nil && u.Scheme != "" && u.Host != "" {
		base := u.Scheme + "://" + u.Host
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")

		model := modelID
		apiPath := "/"
		if n := len(segments); n > 0 && segments[n-1] != "" {
			model = segments[n-1]
			apiPath = "/" + strings.Join(segments[:n-1], "/")
		}

		return Resolved{
			Descriptor: Descriptor{
				Name:         "custom-url",
				BaseURL:      base,
				APIPath:      apiPath,
				Capabilities: Capabilities{SupportsTools: true, SupportsStreaming: true},
			},
			BaseURL: base,
			Model:   model,
		}, nil
	}

	if base := customBaseURL(); base != "" {
		return Resolved{
			Descriptor: Descriptor{
				Name:         "custom-base-url",
				BaseURL:      base,
				APIPath:      "/chat/completions",
				Capabilities: Capabilities{SupportsTools: true, SupportsStreaming: true},
			},
			BaseURL: base,
			Model:   modelID,
		}, nil
	}

	return Resolved{Descriptor: hostedDescriptor, BaseURL: hostedDescriptor.BaseURL, Model: modelID}, nil
}
