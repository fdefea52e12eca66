// Package orchestrator drives the turn-taking loop for a conversation:
// route the user message, let the selected persona speak, ask whether the
// discussion continues, and loop until the continuation protocol stops it
// or the iteration cap fires.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/audio"
	"github.com/parley-ai/parley/contextbudget"
	"github.com/parley-ai/parley/llm"
	"github.com/parley-ai/parley/llm/queue"
	"github.com/parley-ai/parley/llm/speech"
	"github.com/parley-ai/parley/signals"
	"github.com/parley-ai/parley/types"
)

// Router is the routing decision protocol boundary.
type Router interface {
	DecideRouting(ctx context.Context, conv *types.Conversation, userMsg types.Message, sigs signals.Signals, active []types.Persona) types.RoutingDecision
	DecideContinuation(ctx context.Context, conv *types.Conversation, recent []types.Message, lastSpeakerID string) types.ContinuationDecision
}

// Inference is the slice of the request queue the orchestrator needs.
type Inference interface {
	Enqueue(ctx context.Context, req *queue.Request) (*llm.GenerateResponse, error)
}

// Emitter delivers outbound events to the client transport.
type Emitter interface {
	Emit(event types.Event) error
}

// Saver persists the conversation aggregate at turn boundaries.
type Saver interface {
	Save(ctx context.Context, conv *types.Conversation) error
}

// Observer receives turn instrumentation.
type Observer interface {
	TurnCompleted(iterations, responses int)
}

type nopObserver struct{}

func (nopObserver) TurnCompleted(int, int) {}

// Config tunes the turn-taking loop.
type Config struct {
	// MaxIterations caps agent-to-agent turns within one user turn. The cap
	// is the cancellation of last resort for oscillating continuation.
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	// ContinuationWindow is how many of this turn's responses the
	// continuation decision sees.
	ContinuationWindow int `yaml:"continuation_window" json:"continuation_window"`
	// SynthesisTimeout bounds each fire-and-forget synthesis task.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout" json:"synthesis_timeout"`
	// TitleModel, when set, enables conversation title generation on the
	// first completed turn.
	TitleModel string `yaml:"title_model" json:"title_model"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      20,
		ContinuationWindow: 3,
		SynthesisTimeout:   30 * time.Second,
	}
}

// TurnResult summarizes one processed user turn.
type TurnResult struct {
	ConversationID string
	Responses      []types.Message
	Iterations     int
}

// Orchestrator owns all mutation of a conversation during its turn. A
// single logical task processes one conversation's turn at a time; there
// is no cross-conversation shared state here.
type Orchestrator struct {
	router    Router
	inference Inference
	budgeter  *contextbudget.Budgeter
	speech    speech.Provider // nil disables audio
	voices    speech.VoiceDefaults
	audio     *audio.Queue
	emitter   Emitter
	store     Saver // nil skips persistence
	obs       Observer
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New creates an orchestrator.
func New(router Router, inference Inference, budgeter *contextbudget.Budgeter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router:    router,
		inference: inference,
		budgeter:  budgeter,
		obs:       nopObserver{},
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		tracer:    otel.Tracer("parley/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.MaxIterations <= 0 {
		o.cfg.MaxIterations = DefaultConfig().MaxIterations
	}
	if o.cfg.ContinuationWindow <= 0 {
		o.cfg.ContinuationWindow = DefaultConfig().ContinuationWindow
	}
	if o.cfg.SynthesisTimeout <= 0 {
		o.cfg.SynthesisTimeout = DefaultConfig().SynthesisTimeout
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))
	return o
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithConfig overrides the default loop configuration.
func WithConfig(cfg Config) Option { return func(o *Orchestrator) { o.cfg = cfg } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithEmitter sets the outbound event sink.
func WithEmitter(e Emitter) Option { return func(o *Orchestrator) { o.emitter = e } }

// WithStore sets the turn-boundary persistence target.
func WithStore(s Saver) Option { return func(o *Orchestrator) { o.store = s } }

// WithObserver sets the metrics observer.
func WithObserver(obs Observer) Option { return func(o *Orchestrator) { o.obs = obs } }

// WithAudio sets the ack-gated audio delivery queue.
func WithAudio(q *audio.Queue) Option { return func(o *Orchestrator) { o.audio = q } }

// WithSpeech enables speech synthesis with the given voice defaults.
func WithSpeech(p speech.Provider, v speech.VoiceDefaults) Option {
	return func(o *Orchestrator) {
		o.speech = p
		o.voices = v
	}
}

// ProcessUserMessage runs one full user turn: Idle → Routing → Speaking →
// Deciding → {Speaking | Idle}. It always finishes the turn and emits
// all_finished, even when every generation fails; the client is never
// left hanging.
func (o *Orchestrator) ProcessUserMessage(ctx context.Context, conv *types.Conversation, userMsg types.Message) *TurnResult {
	ctx, span := o.tracer.Start(ctx, "orchestrator.user_turn",
		trace.WithAttributes(attribute.String("conversation.id", conv.ID)))
	defer span.End()

	conv.AppendUserMessage(userMsg)

	sigs := signals.Extract(userMsg.Content, expertiseTags(conv.Personas))
	decision := o.router.DecideRouting(ctx, conv, userMsg, sigs, conv.Personas)

	result := &TurnResult{ConversationID: conv.ID}
	if len(decision.SelectedPersonas) == 0 || decision.Action == types.ActionEnd || decision.Action == types.ActionClarify {
		o.logger.Info("routing selected no speaker",
			zap.String("conversation_id", conv.ID),
			zap.String("action", string(decision.Action)),
		)
		o.finishTurn(ctx, conv, result)
		return result
	}

	conv.Turn.BeginUserTurn()
	conv.Turn.DiscussionActive = true
	speaker := decision.SelectedPersonas[0]

	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		result.Iterations = iter + 1

		persona, ok := conv.Persona(speaker)
		if !ok {
			o.logger.Error("speaker vanished from active set",
				zap.String("conversation_id", conv.ID),
				zap.String("persona_id", speaker),
			)
			break
		}

		o.emit(types.Event{
			Kind:           types.EventTyping,
			ConversationID: conv.ID,
			PersonaID:      persona.ID,
			Timestamp:      time.Now(),
		})

		msg, err := o.generateResponse(ctx, conv, persona, result.Responses)
		if err != nil {
			o.logger.Warn("persona generation failed",
				zap.String("conversation_id", conv.ID),
				zap.String("persona_id", persona.ID),
				zap.Error(err),
			)
			o.emit(types.Event{
				Kind:           types.EventError,
				ConversationID: conv.ID,
				PersonaID:      persona.ID,
				Error:          err.Error(),
				Timestamp:      time.Now(),
			})
			break
		}

		conv.AppendPersonaResponse(msg)
		result.Responses = append(result.Responses, msg)

		o.emit(types.Event{
			Kind:           types.EventResponse,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			PersonaID:      persona.ID,
			Content:        msg.Content,
			Timestamp:      time.Now(),
		})

		if conv.Voice.Enabled && o.speech != nil && o.audio != nil {
			// Fire and forget: speech latency must not delay the next
			// speaker's text.
			go o.synthesize(conv.ID, conv.Voice, persona, msg)
		}

		if !conv.Turn.RecordAgentTurn() {
			break
		}
		if iter+1 >= o.cfg.MaxIterations {
			break
		}

		cont := o.router.DecideContinuation(ctx, conv, lastN(result.Responses, o.cfg.ContinuationWindow), persona.ID)
		if !cont.Continue {
			break
		}
		speaker = cont.NextSpeaker
	}

	conv.Turn.EndDiscussion()
	o.maybeGenerateTitle(ctx, conv, userMsg)
	o.finishTurn(ctx, conv, result)
	return result
}

// AcknowledgeAudio forwards a playback ack to the audio delivery queue.
func (o *Orchestrator) AcknowledgeAudio(ack types.PlaybackAck) {
	if o.audio != nil {
		o.audio.Acknowledge(ack)
	}
}

// finishTurn emits all_finished, records metrics, and persists the
// aggregate. Persistence happens at turn boundaries only, never on
// sub-steps.
func (o *Orchestrator) finishTurn(ctx context.Context, conv *types.Conversation, result *TurnResult) {
	o.emit(types.Event{
		Kind:           types.EventAllFinished,
		ConversationID: conv.ID,
		ResponseCount:  len(result.Responses),
		Timestamp:      time.Now(),
	})
	o.obs.TurnCompleted(result.Iterations, len(result.Responses))

	if o.store != nil {
		if err := o.store.Save(ctx, conv); err != nil {
			o.logger.Error("failed to persist conversation",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
		}
	}

	o.logger.Info("turn finished",
		zap.String("conversation_id", conv.ID),
		zap.Int("iterations", result.Iterations),
		zap.Int("responses", len(result.Responses)),
	)
}

// generateResponse produces one persona response using the enhanced
// history: the persona's isolated context (which already holds the user
// message) plus temporary prefixed copies of the other personas' responses
// from this turn. The prefixed copies are never persisted; isolated
// contexts stay isolated.
func (o *Orchestrator) generateResponse(ctx context.Context, conv *types.Conversation, persona types.Persona, turnResponses []types.Message) (types.Message, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.generate",
		trace.WithAttributes(attribute.String("persona.id", persona.ID)))
	defer span.End()

	system := persona.SystemPrompt
	if sel := o.budgeter.SelectForPersona(conv, persona.ID); sel.PromptBlock != "" {
		system += "\n\n" + sel.PromptBlock
	}

	msgs := []llm.ChatMessage{{Role: llm.RoleSystem, Content: system}}
	for _, m := range o.budgeter.TrimHistory(conv.PersonaContext(persona.ID)) {
		role := llm.RoleUser
		if m.Sender == types.SenderPersona {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.ChatMessage{Role: role, Content: m.Content})
	}
	for _, r := range turnResponses {
		if r.PersonaID == persona.ID {
			continue
		}
		name := r.PersonaID
		if p, ok := conv.Persona(r.PersonaID); ok {
			name = p.Name
		}
		msgs = append(msgs, llm.ChatMessage{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("[%s, another participant in this discussion, just said]: %s", name, r.Content),
		})
	}

	resp, err := o.inference.Enqueue(ctx, &queue.Request{
		ConversationID: conv.ID,
		PersonaID:      persona.ID,
		Mode:           queue.ModeIterative,
		Generate: &llm.GenerateRequest{
			Model:    persona.Model,
			Messages: msgs,
		},
	})
	if err != nil {
		return types.Message{}, err
	}
	return types.NewPersonaMessage(persona.ID, resp.Text), nil
}

// synthesize runs one fire-and-forget synthesis task and hands the result
// to the ack-gated delivery queue. Failures surface as audio_error events;
// the text was already delivered.
func (o *Orchestrator) synthesize(conversationID string, settings types.VoiceSettings, persona types.Persona, msg types.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.SynthesisTimeout)
	defer cancel()

	voice := speech.ResolveVoice(settings, persona, o.voices)
	resp, err := o.speech.Synthesize(ctx, &speech.SynthesizeRequest{
		Text:     msg.Content,
		VoiceID:  voice,
		Style:    settings.Style,
		Language: settings.Language,
	})
	if err != nil {
		o.logger.Warn("speech synthesis failed",
			zap.String("conversation_id", conversationID),
			zap.String("persona_id", persona.ID),
			zap.Error(err),
		)
		o.emit(types.Event{
			Kind:           types.EventAudioError,
			ConversationID: conversationID,
			MessageID:      msg.ID,
			PersonaID:      persona.ID,
			Error:          err.Error(),
			Timestamp:      time.Now(),
		})
		return
	}

	o.audio.Enqueue(audio.Item{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		PersonaID:      persona.ID,
		Payload: types.AudioPayload{
			Data:     resp.Audio,
			Format:   resp.Format,
			Duration: resp.Duration,
			VoiceID:  resp.VoiceID,
		},
	})
}

func (o *Orchestrator) emit(event types.Event) {
	if o.emitter == nil {
		return
	}
	if err := o.emitter.Emit(event); err != nil {
		o.logger.Warn("event emission failed",
			zap.String("conversation_id", event.ConversationID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

func expertiseTags(personas []types.Persona) []string {
	var tags []string
	for _, p := range personas {
		tags = append(tags, p.Expertise...)
	}
	return tags
}

func lastN(msgs []types.Message, n int) []types.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// maybeGenerateTitle names the conversation after its first completed
// turn with a cheap parallel-mode model call. Failures leave the title
// empty; the next turn tries again.
func (o *Orchestrator) maybeGenerateTitle(ctx context.Context, conv *types.Conversation, userMsg types.Message) {
	if o.cfg.TitleModel == "" || conv.Title != "" {
		return
	}

	resp, err := o.inference.Enqueue(ctx, &queue.Request{
		ConversationID: conv.ID,
		Mode:           queue.ModeParallel,
		Generate: &llm.GenerateRequest{
			Model:     o.cfg.TitleModel,
			MaxTokens: 24,
			Messages: []llm.ChatMessage{
				{Role: llm.RoleSystem, Content: "You produce a conversation title of at most six words. Output only the title."},
				{Role: llm.RoleUser, Content: userMsg.Content},
			},
		},
	})
	if err != nil {
		o.logger.Debug("title generation failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return
	}
	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Text), `"`))
	if title != "" {
		conv.Title = title
	}
}
