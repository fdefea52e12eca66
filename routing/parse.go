package routing

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/parley-ai/parley/llm"
)

// ParseStrategy identifies which extraction strategy recovered the JSON
// payload from a model response.
type ParseStrategy string

const (
	// StrategyDirect parsed the raw text as-is.
	StrategyDirect ParseStrategy = "direct"
	// StrategyContentArray pulled the payload from the provider's content
	// parts, preferring text fields over reasoning fields.
	StrategyContentArray ParseStrategy = "content_array"
	// StrategyRegex extracted a JSON object from surrounding prose or a
	// fenced code block.
	StrategyRegex ParseStrategy = "regex"
	// StrategyBrace matched from the first '{' to the last '}'.
	StrategyBrace ParseStrategy = "brace"
)

// Result is the tagged outcome of the parse chain.
type Result[T any] struct {
	Value    T
	Strategy ParseStrategy
}

// fencedRe matches ```json ... ``` or plain ``` ... ``` blocks.
var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// objectRe finds a braced object embedded in prose. Non-greedy so trailing
// commentary after the object does not leak in.
var objectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Parse runs the ordered strategy chain over a model response and decodes
// the first candidate that unmarshals into T. The chain is: direct JSON,
// provider content-array (text preferred over reasoning), regex extraction,
// then brace matching. Returns false when every strategy fails; callers
// fall back to heuristic routing, never surface the failure.
func Parse[T any](resp *llm.GenerateResponse) (Result[T], bool) {
	for _, c := range candidates(resp) {
		var value T
		if err := json.Unmarshal([]byte(c.payload), &value); err == nil {
			return Result[T]{Value: value, Strategy: c.strategy}, true
		}
	}
	var zero Result[T]
	return zero, false
}

type candidate struct {
	payload  string
	strategy ParseStrategy
}

func candidates(resp *llm.GenerateResponse) []candidate {
	if resp == nil {
		return nil
	}
	var out []candidate

	raw := strings.TrimSpace(resp.Text)
	if raw != "" {
		out = append(out, candidate{payload: raw, strategy: StrategyDirect})
	}

	for _, part := range contentArrayTexts(resp.Parts) {
		out = append(out, candidate{payload: part, strategy: StrategyContentArray})
	}

	if extracted, ok := extractRegex(raw); ok {
		out = append(out, candidate{payload: extracted, strategy: StrategyRegex})
	}

	if extracted, ok := extractBraces(raw); ok {
		out = append(out, candidate{payload: extracted, strategy: StrategyBrace})
	}

	return out
}

// contentArrayTexts returns candidate payloads from the provider's content
// parts. Text fields come first; reasoning fields (where some
// reasoning-capable models bury the JSON) follow.
func contentArrayTexts(parts []llm.ContentPart) []string {
	var texts, reasonings []string
	for _, p := range parts {
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
		if r := strings.TrimSpace(p.Reasoning); r != "" {
			reasonings = append(reasonings, r)
		}
	}
	out := append(texts, reasonings...)
	// parts may themselves wrap the object in prose or fences.
	for _, t := range out[:len(out):len(out)] {
		if extracted, ok := extractRegex(t); ok {
			out = append(out, extracted)
		}
	}
	return out
}

// extractRegex pulls a JSON object out of a fenced block or free text.
func extractRegex(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	if strings.Contains(s, "```") {
		if m := fencedRe.FindStringSubmatch(s); len(m) > 1 {
			return strings.TrimSpace(m[1]), true
		}
	}
	if m := objectRe.FindString(s); m != "" {
		return m, true
	}
	return "", false
}

// extractBraces is the last resort: everything between the first '{' and
// the last '}'.
func extractBraces(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
