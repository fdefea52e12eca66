package routing

import (
	"fmt"
	"strings"

	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/signals"
	"github.com/parley-ai/parley/types"
)

// buildRoutingPrompt produces the decision prompt for persona selection.
// The prompt asks for a strict JSON object; the parse chain tolerates the
// ways models fail to comply.
func buildRoutingPrompt(conv *types.Conversation, userMsg types.Message, sigs signals.Signals, active []types.Persona, recentN int) []llm.ChatMessage {
	var b strings.Builder
	b.WriteString("You are the conversation router for a multi-persona discussion.\n")
	b.WriteString("Pick the single persona best suited to answer the latest user message.\n\n")
	b.WriteString("Active personas:\n")
	for _, p := range active {
		fmt.Fprintf(&b, "- id=%q name=%q role=%q", p.ID, p.Name, p.Role)
		if len(p.Expertise) > 0 {
			fmt.Fprintf(&b, " expertise=%s", strings.Join(p.Expertise, ", "))
		}
		b.WriteString("\n")
	}

	if recent := conv.RecentHistory(recentN); len(recent) > 0 {
		b.WriteString("\nRecent conversation:\n")
		writeTranscript(&b, recent, conv.Personas)
	}

	if len(sigs.Topics) > 0 {
		fmt.Fprintf(&b, "\nDetected topics: %s\n", strings.Join(sigs.Topics, ", "))
	}
	if sigs.IsQuestion {
		b.WriteString("The message is a question.\n")
	}

	fmt.Fprintf(&b, "\nLatest user message:\n%s\n\n", userMsg.Content)
	b.WriteString("Respond with ONLY a JSON object, no prose:\n")
	b.WriteString(`{"selectedPersonas": ["<persona id>"], "confidence": <0..1>, "action": "route_to_persona", "reasoning": "<one sentence>"}`)
	b.WriteString("\nValid actions: route_to_persona, multi_persona, end, request_clarification.\n")

	return []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "You output strict JSON routing decisions and nothing else."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

// buildContinuationPrompt asks whether the persona discussion should go on
// and who should speak next.
func buildContinuationPrompt(conv *types.Conversation, recent []types.Message) []llm.ChatMessage {
	var b strings.Builder
	b.WriteString("You moderate a multi-persona discussion that is responding to a user.\n")
	b.WriteString("Decide whether another persona should add to the discussion before the floor returns to the user.\n\n")
	b.WriteString("Active personas:\n")
	for _, p := range conv.Personas {
		fmt.Fprintf(&b, "- id=%q name=%q role=%q\n", p.ID, p.Name, p.Role)
	}

	if len(recent) > 0 {
		b.WriteString("\nDiscussion so far this turn:\n")
		writeTranscript(&b, recent, conv.Personas)
	}

	b.WriteString("\nContinue only when a persona has something substantive to add; do not let personas repeat each other.\n")
	b.WriteString("Respond with ONLY a JSON object, no prose:\n")
	b.WriteString(`{"continue": <true|false>, "nextSpeaker": "<persona id or empty>", "topic": "<what they should address>", "reasoning": "<one sentence>"}`)
	b.WriteString("\n")

	return []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: "You output strict JSON continuation decisions and nothing else."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

// writeTranscript renders messages as "Name: content" lines, resolving
// persona ids to display names.
func writeTranscript(b *strings.Builder, msgs []types.Message, personas []types.Persona) {
	for _, m := range msgs {
		name := "User"
		if m.Sender == types.SenderPersona {
			name = m.PersonaID
			if p, ok := types.FindPersona(personas, m.PersonaID); ok {
				name = p.Name
			}
		}
		fmt.Fprintf(b, "%s: %s\n", name, m.Content)
	}
}
