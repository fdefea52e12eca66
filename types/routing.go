package types

// ConversationAction is the routing protocol's verdict on how the
// conversation should proceed.
type ConversationAction string

const (
	ActionRouteToPersona ConversationAction = "route_to_persona"
	ActionMultiPersona   ConversationAction = "multi_persona"
	ActionEnd            ConversationAction = "end"
	ActionClarify        ConversationAction = "request_clarification"
)

// RoutingDecision is produced per user turn and never persisted.
// By policy SelectedPersonas holds exactly one id.
type RoutingDecision struct {
	SelectedPersonas []string           `json:"selected_personas"`
	Confidence       float64            `json:"confidence"`
	Reasoning        string             `json:"reasoning,omitempty"`
	Action           ConversationAction `json:"action"`
}

// ContinuationDecision governs whether agent discussion continues
// within the current user turn, and who speaks next.
type ContinuationDecision struct {
	Continue    bool   `json:"continue"`
	NextSpeaker string `json:"next_speaker,omitempty"`
	Topic       string `json:"topic,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
}
