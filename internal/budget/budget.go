// Package budget provides token estimation for prompts and summaries.
// Because several LLM backends with different tokenizers are supported, it
// uses a conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perMessageOverhead approximates the role and framing tokens most chat
	// APIs add to each message.
	perMessageOverhead = 4

	// DefaultMaxContextTokens is the default prompt budget in tokens, sized
	// for 8k-context models with room left for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Prompt estimates a single system + user exchange and reports whether it
// exceeds maxTokens. A maxTokens <= 0 selects DefaultMaxContextTokens.
func Prompt(systemRole, prompt string, maxTokens int) (tokens int, over bool) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}
	tokens = EstimateMessages([]*schema.Message{
		schema.SystemMessage(systemRole),
		schema.UserMessage(prompt),
	})
	return tokens, tokens > maxTokens
}

// PerChunk returns the output-token budget for each chunk summary:
// maxFinal / chunks − threshold, using integer division. The result may be
// zero or negative when the threshold dominates; callers pass it through
// unchanged. chunks must be positive.
func PerChunk(maxFinal, chunks, threshold int) int {
	return maxFinal/chunks - threshold
}
