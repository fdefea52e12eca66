// Package tokenizer provides token counting for context budgeting.
package tokenizer

import "github.com/parley-ai/parley/types"

// Tokenizer counts tokens for budget math. Implementations never fail at
// call time; initialization problems degrade to estimation.
type Tokenizer interface {
	// CountTokens counts tokens in a text string.
	CountTokens(text string) int
	// CountMessages counts total tokens across messages, including
	// per-message framing overhead.
	CountMessages(msgs []types.Message) int
	// Name returns the tokenizer identifier.
	Name() string
}
