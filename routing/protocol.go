// Package routing decides which persona speaks next. The primary path asks
// an inference model and parses its answer through an ordered strategy
// chain; every failure mode degrades to heuristic routing, so routing
// never fails a request outright.
package routing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/llm/queue"
	"github.com/parley-ai/parley/signals"
	"github.com/parley-ai/parley/types"
)

// Inference is the slice of the request queue the protocol needs.
// Satisfied by *queue.Queue.
type Inference interface {
	Enqueue(ctx context.Context, req *queue.Request) (*llm.GenerateResponse, error)
}

// Config tunes the routing protocol's model calls.
type Config struct {
	// Model is the (cheaper) model used for decision prompts.
	Model string `yaml:"model" json:"model"`
	// MaxTokens bounds decision responses; these are small JSON payloads.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// RecentHistory is how many shared-history messages the routing prompt
	// includes.
	RecentHistory int `yaml:"recent_history" json:"recent_history"`
	// Timeout is the hard per-decision timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     300,
		RecentHistory: 6,
		Timeout:       20 * time.Second,
	}
}

// Protocol implements the routing and continuation decisions.
type Protocol struct {
	inference Inference
	cfg       Config
	logger    *zap.Logger
}

// New creates a routing protocol backed by the given inference queue.
func New(inference Inference, cfg Config, logger *zap.Logger) *Protocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.RecentHistory <= 0 {
		cfg.RecentHistory = def.RecentHistory
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Protocol{
		inference: inference,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "routing_protocol")),
	}
}

// DecideRouting selects which active persona should respond to the user
// message. A direct mention bypasses the model entirely; otherwise the
// model is consulted and any failure falls back to heuristics.
func (p *Protocol) DecideRouting(ctx context.Context, conv *types.Conversation, userMsg types.Message, sigs signals.Signals, active []types.Persona) types.RoutingDecision {
	if len(active) == 0 {
		return types.RoutingDecision{Action: types.ActionEnd, Reasoning: "no active personas"}
	}

	// Direct question always wins; checked before any model call.
	if id, ok := signals.MentionedPersona(userMsg.Content, active); ok {
		return types.RoutingDecision{
			SelectedPersonas: []string{id},
			Confidence:       1.0,
			Action:           types.ActionRouteToPersona,
			Reasoning:        "user addressed persona directly",
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.inference.Enqueue(callCtx, &queue.Request{
		ConversationID: conv.ID,
		Mode:           queue.ModeParallel,
		Generate: &llm.GenerateRequest{
			Model:     p.cfg.Model,
			MaxTokens: p.cfg.MaxTokens,
			Messages:  buildRoutingPrompt(conv, userMsg, sigs, active, p.cfg.RecentHistory),
		},
	})
	if err != nil {
		p.logger.Warn("routing model call failed, using heuristic fallback",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return Fallback(userMsg, sigs, active, "model unavailable")
	}

	result, ok := Parse[routingWire](resp)
	if !ok {
		p.logger.Warn("routing response unparseable, using heuristic fallback",
			zap.String("conversation_id", conv.ID),
		)
		return Fallback(userMsg, sigs, active, "unparseable response")
	}

	decision, ok := p.validateRouting(result.Value, active)
	if !ok {
		p.logger.Warn("routing named persona outside active set, using heuristic fallback",
			zap.String("conversation_id", conv.ID),
			zap.Strings("named", result.Value.ids()),
		)
		return Fallback(userMsg, sigs, active, "persona not active")
	}

	p.logger.Debug("routing decided",
		zap.String("conversation_id", conv.ID),
		zap.Strings("personas", decision.SelectedPersonas),
		zap.Float64("confidence", decision.Confidence),
		zap.String("strategy", string(result.Strategy)),
	)
	return decision
}

// validateRouting normalizes the wire decision and checks the named
// persona against the active set. Policy: exactly one persona speaks.
func (p *Protocol) validateRouting(wire routingWire, active []types.Persona) (types.RoutingDecision, bool) {
	var selected string
	for _, id := range wire.ids() {
		if _, ok := types.FindPersona(active, id); ok {
			selected = id
			break
		}
	}
	if selected == "" {
		return types.RoutingDecision{}, false
	}

	confidence := wire.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	action := types.ConversationAction(wire.Action)
	switch action {
	case types.ActionRouteToPersona, types.ActionMultiPersona, types.ActionEnd, types.ActionClarify:
	default:
		action = types.ActionRouteToPersona
	}

	return types.RoutingDecision{
		SelectedPersonas: []string{selected},
		Confidence:       confidence,
		Action:           action,
		Reasoning:        wire.Reasoning,
	}, true
}

// DecideContinuation asks whether agent discussion should continue within
// the current user turn and who speaks next. A suggested speaker outside
// the active set, or a repeat of the speaker who just finished, is logged
// and treated as "do not continue".
func (p *Protocol) DecideContinuation(ctx context.Context, conv *types.Conversation, recent []types.Message, lastSpeakerID string) types.ContinuationDecision {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.inference.Enqueue(callCtx, &queue.Request{
		ConversationID: conv.ID,
		Mode:           queue.ModeParallel,
		Generate: &llm.GenerateRequest{
			Model:     p.cfg.Model,
			MaxTokens: p.cfg.MaxTokens,
			Messages:  buildContinuationPrompt(conv, recent),
		},
	})
	if err != nil {
		p.logger.Warn("continuation model call failed, ending discussion",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return types.ContinuationDecision{Reasoning: "model unavailable"}
	}

	result, ok := Parse[continuationWire](resp)
	if !ok {
		p.logger.Warn("continuation response unparseable, ending discussion",
			zap.String("conversation_id", conv.ID),
		)
		return types.ContinuationDecision{Reasoning: "unparseable response"}
	}

	wire := result.Value
	if !wire.Continue {
		return types.ContinuationDecision{
			Topic:     wire.Topic,
			Reasoning: wire.Reasoning,
		}
	}

	if !conv.HasPersona(wire.NextSpeaker) {
		p.logger.Warn("continuation suggested inactive speaker, ending discussion",
			zap.String("conversation_id", conv.ID),
			zap.String("next_speaker", wire.NextSpeaker),
		)
		return types.ContinuationDecision{Reasoning: "suggested speaker not active"}
	}
	if wire.NextSpeaker == lastSpeakerID {
		p.logger.Warn("continuation suggested repeat speaker, ending discussion",
			zap.String("conversation_id", conv.ID),
			zap.String("next_speaker", wire.NextSpeaker),
		)
		return types.ContinuationDecision{Reasoning: "suggested speaker just spoke"}
	}

	return types.ContinuationDecision{
		Continue:    true,
		NextSpeaker: wire.NextSpeaker,
		Topic:       wire.Topic,
		Reasoning:   wire.Reasoning,
	}
}
