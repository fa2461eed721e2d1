// Package adapter implements the Adapter Layer: per-model-family hooks that
// mutate outbound payloads and inspect inbound deltas for backend quirks
// native capability gating alone can't express (e.g. parsing tool calls out
// of plain text on a backend with no native tool-call support). Grounded on
// spec.md §9's "Adapter polymorphism" design note; the teacher has no
// equivalent layer, so this is new surface built in the teacher's idiom of a
// small interface selected from a registry (c.f.
// internal/providers.Registry).
package adapter

import (
	"github.com/claudish/claudish/internal/openaiwire"
	"github.com/claudish/claudish/internal/providers"
)

// Adapter is the capability interface from spec.md §9: {prepare_request,
// transform_delta, reset}.
type Adapter interface {
	// PrepareRequest mutates the outbound request for this model family's
	// quirks (e.g. stripping tools, adjusting temperature).
	PrepareRequest(req *openaiwire.Request, caps providers.Capabilities)
	// TransformDelta inspects/rewrites one inbound delta before it reaches
	// the streaming state machine. Used by text-tool-call adapters to turn
	// inline "```tool_call {...}```" fragments into synthetic ToolCalls.
	TransformDelta(delta *openaiwire.Delta)
	// Reset clears any per-request accumulation state so the adapter can be
	// reused across requests.
	Reset()
}

// Select picks the adapter from the backend's capabilities alone: a
// backend without tool support gets the TextToolCallAdapter, every other
// backend the PassthroughAdapter. The model identifier is not consulted;
// there are no model-family-specific adapters.
func Select(model string, caps providers.Capabilities) Adapter {
	if !caps.SupportsTools {
		return NewTextToolCallAdapter()
	}

	return NewPassthroughAdapter()
}

// PassthroughAdapter performs no mutation; used whenever the backend's
// native capabilities already satisfy the request.
type PassthroughAdapter struct{}

func NewPassthroughAdapter() *PassthroughAdapter { return &PassthroughAdapter{} }

func (a *PassthroughAdapter) PrepareRequest(req *openaiwire.Request, caps providers.Capabilities) {
	if !caps.SupportsVision {
		stripImageParts(req)
	}
}

func (a *PassthroughAdapter) TransformDelta(delta *openaiwire.Delta) {}

func (a *PassthroughAdapter) Reset() {}

func stripImageParts(req *openaiwire.Request) {
	for i := range req.Messages {
		if len(req.Messages[i].Parts) == 0 {
			continue
		}

		var kept []openaiwire.ContentPart
		for _, p := range req.Messages[i].Parts {
			if p.Type != "image_url" {
				kept = append(kept, p)
			}
		}
		req.Messages[i].Parts = kept
	}
}
