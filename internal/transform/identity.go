package transform

import (
	"regexp"

	"github.com/claudish/claudish/internal/openaiwire"
)

// identityPreamblePatterns matches assistant turns that exist only to
// disclose the model's own identity (e.g. leaked from a prior turn with a
// different backend). Removing these prevents identity leakage when the
// router swaps the backing model mid-conversation, per spec.md §4.1 step 3.
var identityPreamblePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^i('m| am) (claude|an ai (assistant|model) (made|created|trained) by anthropic)`),
	regexp.MustCompile(`(?i)^as an ai (language model|assistant) (made|created|trained) by anthropic`),
	regexp.MustCompile(`(?i)^i('m| am) (chatgpt|gpt-4|an openai model)`),
}

func isIdentityPreamble(text string) bool {
	for _, p := range identityPreamblePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// filterIdentityPreamble removes assistant messages whose entire content is
// an identity-disclosure preamble and nothing else.
func filterIdentityPreamble(msgs []openaiwire.Message) []openaiwire.Message {
	out := make([]openaiwire.Message, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == "assistant" && len(m.ToolCalls) == 0 && isIdentityPreamble(m.Content) {
			continue
		}
		out = append(out, m)
	}

	return out
}
