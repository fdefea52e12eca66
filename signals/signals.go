// Package signals extracts lightweight content signals from user messages.
// The signals feed heuristic routing when the intelligent router is
// unavailable; they are never a substitute for it.
package signals

import (
	"sort"
	"strings"
)

// Signals summarizes a message for heuristic routing.
type Signals struct {
	Keywords   []string `json:"keywords,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	Sentiment  float64  `json:"sentiment"`  // -1..1
	Complexity float64  `json:"complexity"` // 0..1
	IsQuestion bool     `json:"is_question"`
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "do": {}, "for": {}, "from": {}, "has": {},
	"have": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "my": {},
	"of": {}, "on": {}, "or": {}, "so": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "was": {}, "we": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "you": {},
	"your": {},
}

var positiveWords = map[string]struct{}{
	"great": {}, "good": {}, "love": {}, "excellent": {}, "thanks": {},
	"thank": {}, "awesome": {}, "nice": {}, "happy": {}, "perfect": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "hate": {}, "terrible": {}, "awful": {}, "wrong": {},
	"broken": {}, "fail": {}, "failed": {}, "angry": {}, "problem": {},
}

const maxKeywords = 8

// Extract computes content signals for a message. topicTags should be the
// union of active-persona expertise tags; a topic is reported when the
// message mentions it.
func Extract(text string, topicTags []string) Signals {
	words := tokenize(text)

	var sig Signals
	sig.IsQuestion = strings.Contains(text, "?")
	sig.Keywords = topKeywords(words)
	sig.Sentiment = scoreSentiment(words)
	sig.Complexity = scoreComplexity(words)

	lower := strings.ToLower(text)
	for _, tag := range topicTags {
		if tag != "" && strings.Contains(lower, strings.ToLower(tag)) {
			sig.Topics = append(sig.Topics, tag)
		}
	}
	return sig
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'')
	})
	return fields
}

func topKeywords(words []string) []string {
	freq := make(map[string]int)
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, skip := stopwords[w]; skip {
			continue
		}
		freq[w]++
	}

	keywords := make([]string, 0, len(freq))
	for w := range freq {
		keywords = append(keywords, w)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if freq[keywords[i]] != freq[keywords[j]] {
			return freq[keywords[i]] > freq[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

func scoreSentiment(words []string) float64 {
	var pos, neg int
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func scoreComplexity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	var longWords int
	for _, w := range words {
		if len(w) > 7 {
			longWords++
		}
	}
	// word count and long-word ratio, each capped, averaged.
	lengthScore := float64(len(words)) / 60.0
	if lengthScore > 1 {
		lengthScore = 1
	}
	longScore := float64(longWords) / float64(len(words)) * 3
	if longScore > 1 {
		longScore = 1
	}
	return (lengthScore + longScore) / 2
}
