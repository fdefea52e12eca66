package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/parley-ai/parley/types"
)

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// Tiktoken wraps tiktoken-go for OpenAI-family models. Encoding data is
// initialized lazily; on failure every call degrades to the estimator so
// budgeting keeps working offline.
type Tiktoken struct {
	model    string
	encoding string
	enc      *tiktoken.Tiktoken
	fallback *Estimator
	once     sync.Once
	initErr  error
}

// NewTiktoken creates a tiktoken-backed tokenizer for the given model.
// Unknown models default to cl100k_base.
func NewTiktoken(model string) *Tiktoken {
	encoding, ok := modelEncodings[model]
	if !ok {
		for prefix, e := range modelEncodings {
			if strings.HasPrefix(model, prefix) {
				encoding, ok = e, true
				break
			}
		}
	}
	if !ok {
		encoding = "cl100k_base"
	}
	return &Tiktoken{
		model:    model,
		encoding: encoding,
		fallback: NewEstimator(),
	}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) CountMessages(msgs []types.Message) int {
	if err := t.init(); err != nil {
		return t.fallback.CountMessages(msgs)
	}
	total := 0
	for _, m := range msgs {
		total += messageOverheadTokens
		total += len(t.enc.Encode(m.Content, nil, nil))
	}
	total += 3 // conversation-end overhead
	return total
}

func (t *Tiktoken) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
