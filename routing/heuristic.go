package routing

import (
	"strings"

	"github.com/parley-ai/parley/signals"
	"github.com/parley-ai/parley/types"
)

// Fallback routes without a model. Precedence: a directly mentioned
// persona, then the persona whose expertise overlaps the message
// keywords, then the first active persona. Reasoning carries the word
// "fallback" so downstream consumers can tell heuristic decisions apart.
func Fallback(userMsg types.Message, sigs signals.Signals, active []types.Persona, cause string) types.RoutingDecision {
	if len(active) == 0 {
		return types.RoutingDecision{Action: types.ActionEnd, Reasoning: "fallback: no active personas (" + cause + ")"}
	}

	if id, ok := signals.MentionedPersona(userMsg.Content, active); ok {
		return types.RoutingDecision{
			SelectedPersonas: []string{id},
			Confidence:       1.0,
			Action:           types.ActionRouteToPersona,
			Reasoning:        "fallback: persona addressed directly (" + cause + ")",
		}
	}

	if id, ok := bestExpertiseMatch(sigs, active); ok {
		return types.RoutingDecision{
			SelectedPersonas: []string{id},
			Confidence:       0.4,
			Action:           types.ActionRouteToPersona,
			Reasoning:        "fallback: expertise keyword match (" + cause + ")",
		}
	}

	return types.RoutingDecision{
		SelectedPersonas: []string{active[0].ID},
		Confidence:       0.35,
		Action:           types.ActionRouteToPersona,
		Reasoning:        "fallback: first active persona (" + cause + ")",
	}
}

// bestExpertiseMatch scores each persona by how many of its expertise
// tags appear among the message keywords and topics. Ties go to the
// earlier persona in the active list.
func bestExpertiseMatch(sigs signals.Signals, active []types.Persona) (string, bool) {
	terms := make(map[string]struct{}, len(sigs.Keywords)+len(sigs.Topics))
	for _, k := range sigs.Keywords {
		terms[strings.ToLower(k)] = struct{}{}
	}
	for _, t := range sigs.Topics {
		terms[strings.ToLower(t)] = struct{}{}
	}
	if len(terms) == 0 {
		return "", false
	}

	bestID, bestScore := "", 0
	for _, p := range active {
		score := 0
		for _, tag := range p.Expertise {
			if _, ok := terms[strings.ToLower(tag)]; ok {
				score++
			}
		}
		if score > bestScore {
			bestID, bestScore = p.ID, score
		}
	}
	return bestID, bestScore > 0
}
