package tokenizer

import "github.com/parley-ai/parley/types"

const (
	estimateCharsPerToken = 4.0
	messageOverheadTokens = 4
)

// Estimator is a character-based token estimator used when tiktoken is
// unavailable for a model. It deliberately overestimates slightly so
// budget selection errs toward fitting.
type Estimator struct{}

// NewEstimator creates a character-ratio estimator.
func NewEstimator() *Estimator { return &Estimator{} }

func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len([]rune(text)))/estimateCharsPerToken) + 1
	return n
}

func (e *Estimator) CountMessages(msgs []types.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.CountTokens(m.Content) + messageOverheadTokens
	}
	return total
}

func (e *Estimator) Name() string { return "estimate" }
