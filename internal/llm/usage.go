package llm

import (
	"github.com/firebase/genkit/go/ai"

	"github.com/basket/taskorc/internal/tokenutil"
)

// usageFromResponse reads provider-reported token counts from a genkit
// response when present; providers that omit usage accounting fall back to
// internal/tokenutil's word/char estimate heuristic.
func usageFromResponse(resp *ai.ModelResponse, fallbackText string) TokenUsage {
	if resp != nil && resp.Usage != nil && (resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0) {
		return TokenUsage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
			Cached: resp.Usage.CachedContentTokens,
		}
	}
	return TokenUsage{Output: tokenutil.EstimateTokens(fallbackText)}
}
