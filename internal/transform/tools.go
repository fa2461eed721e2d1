package transform

import (
	"regexp"

	"github.com/claudish/claudish/internal/anchor"
	"github.com/claudish/claudish/internal/openaiwire"
)

// validToolName matches the character set most OpenAI-compatible backends
// accept for function names; anything else is replaced with an underscore,
// per spec.md §4.1 step 4 ("invalid characters are replaced").
var validToolName = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// NormalizeTools converts Anchor tool declarations to OpenAI function-schema
// tools. Grounded on the teacher's base.go:TransformTools, generalized to the
// typed anchor.Tool/openaiwire.Tool shapes.
func NormalizeTools(tools []anchor.Tool) ([]openaiwire.Tool, error) {
	out := make([]openaiwire.Tool, 0, len(tools))

	for _, t := range tools {
		out = append(out, openaiwire.Tool{
			Type: "function",
			Function: openaiwire.Function{
				Name:        validToolName.ReplaceAllString(t.Name, "_"),
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	return out, nil
}
