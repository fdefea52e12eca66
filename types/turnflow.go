package types

// TurnFlow tracks agent-to-agent turn taking within one user turn.
// Invariant: AgentTurns <= MaxAgentTurns.
type TurnFlow struct {
	CurrentTurn      int  `json:"current_turn" bson:"current_turn"`
	AgentTurns       int  `json:"agent_turns" bson:"agent_turns"`
	MaxAgentTurns    int  `json:"max_agent_turns" bson:"max_agent_turns"`
	DiscussionActive bool `json:"discussion_active" bson:"discussion_active"`
}

// BeginUserTurn starts a new user turn and resets the agent-turn counter.
func (t *TurnFlow) BeginUserTurn() {
	t.CurrentTurn++
	t.AgentTurns = 0
	t.DiscussionActive = false
}

// RecordAgentTurn increments the agent-turn counter.
// Returns false when the counter has reached its bound.
func (t *TurnFlow) RecordAgentTurn() bool {
	if t.AgentTurns >= t.MaxAgentTurns {
		return false
	}
	t.AgentTurns++
	return true
}

// EndDiscussion marks agent discussion inactive for the current turn.
func (t *TurnFlow) EndDiscussion() {
	t.DiscussionActive = false
}
