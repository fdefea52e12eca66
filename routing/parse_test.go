package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/llm"
)

func TestParseDirectJSON(t *testing.T) {
	t.Parallel()
	resp := &llm.GenerateResponse{Text: `{"selectedPersonas":["p1"],"confidence":0.9,"action":"route_to_persona"}`}

	result, ok := Parse[routingWire](resp)
	require.True(t, ok)
	assert.Equal(t, StrategyDirect, result.Strategy)
	assert.Equal(t, []string{"p1"}, result.Value.ids())
	assert.InDelta(t, 0.9, result.Value.Confidence, 1e-9)
}

func TestParseFencedCodeBlock(t *testing.T) {
	t.Parallel()
	resp := &llm.GenerateResponse{Text: "Here is my decision:\n```json\n{\"selectedPersonas\": [\"p2\"], \"confidence\": 0.8, \"action\": \"route_to_persona\", \"reasoning\": \"best fit\"}\n```\nHope that helps!"}

	result, ok := Parse[routingWire](resp)
	require.True(t, ok)
	assert.Equal(t, StrategyRegex, result.Strategy)
	assert.Equal(t, []string{"p2"}, result.Value.ids())
}

func TestParseContentArrayPreferred(t *testing.T) {
	t.Parallel()
	resp := &llm.GenerateResponse{
		Text: "thinking out loud, no json here",
		Parts: []llm.ContentPart{
			{Type: "reasoning", Reasoning: `{"selectedPersonas":["wrong"],"confidence":0.1}`},
			{Type: "text", Text: `{"selectedPersonas":["p3"],"confidence":0.7}`},
		},
	}

	result, ok := Parse[routingWire](resp)
	require.True(t, ok)
	assert.Equal(t, StrategyContentArray, result.Strategy)
	assert.Equal(t, []string{"p3"}, result.Value.ids(),
		"text parts must be tried before reasoning parts")
}

func TestParseBraceFallback(t *testing.T) {
	t.Parallel()
	// Trailing prose defeats the non-greedy regex candidates but the
	// first-{ to last-} slice still lands on valid JSON.
	resp := &llm.GenerateResponse{Text: `answer {"continue": true, "nextSpeaker": "p1"}`}

	result, ok := Parse[continuationWire](resp)
	require.True(t, ok)
	assert.True(t, result.Value.Continue)
	assert.Equal(t, "p1", result.Value.NextSpeaker)
}

func TestParseSingularPersonaField(t *testing.T) {
	t.Parallel()
	resp := &llm.GenerateResponse{Text: `{"selectedPersona":"p4","confidence":0.6}`}

	result, ok := Parse[routingWire](resp)
	require.True(t, ok)
	assert.Equal(t, []string{"p4"}, result.Value.ids())
}

func TestParseBareStringInArrayField(t *testing.T) {
	t.Parallel()
	resp := &llm.GenerateResponse{Text: `{"selectedPersonas":"p5","confidence":0.6}`}

	result, ok := Parse[routingWire](resp)
	require.True(t, ok)
	assert.Equal(t, []string{"p5"}, result.Value.ids())
}

func TestParseAllStrategiesFail(t *testing.T) {
	t.Parallel()
	resp := &llm.GenerateResponse{Text: "I cannot decide, sorry."}

	_, ok := Parse[routingWire](resp)
	assert.False(t, ok)
}

func TestParseNilResponse(t *testing.T) {
	t.Parallel()
	_, ok := Parse[routingWire](nil)
	assert.False(t, ok)
}
