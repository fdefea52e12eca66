package signals

import (
	"strings"

	"github.com/parley-ai/parley/types"
)

// MentionedPersona returns the id of the persona the message explicitly
// names, if any. A match requires the persona's name as a whole word,
// case-insensitive. When several personas are named the earliest mention
// in the message wins.
func MentionedPersona(text string, personas []types.Persona) (string, bool) {
	lower := strings.ToLower(text)

	bestIdx := -1
	bestID := ""
	for _, p := range personas {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			continue
		}
		idx := indexWholeWord(lower, name)
		if idx < 0 {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			bestIdx = idx
			bestID = p.ID
		}
	}
	return bestID, bestIdx >= 0
}

func indexWholeWord(haystack, word string) int {
	from := 0
	for {
		idx := strings.Index(haystack[from:], word)
		if idx < 0 {
			return -1
		}
		idx += from
		beforeOK := idx == 0 || !isWordRune(rune(haystack[idx-1]))
		afterIdx := idx + len(word)
		afterOK := afterIdx >= len(haystack) || !isWordRune(rune(haystack[afterIdx]))
		if beforeOK && afterOK {
			return idx
		}
		from = idx + 1
	}
}

func isWordRune(r rune) bool {
	return 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9'
}
