package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/orchestrator"
	"github.com/parley-ai/parley/store"
	"github.com/parley-ai/parley/transport"
	"github.com/parley-ai/parley/types"
)

// ConversationService is the HTTP and WebSocket surface over the
// orchestration core. It owns conversation lookup (registry first, then
// the store) and serializes turns per conversation so the WebSocket read
// loop stays free to deliver playback acks while a turn runs.
type ConversationService struct {
	registry *orchestrator.Registry
	store    store.ConversationStore // nil disables persistence lookups
	orch     *orchestrator.Orchestrator
	hub      *Hub
	metrics  http.Handler // nil disables the /metrics endpoint
	logger   *zap.Logger

	maxAgentTurns int
	turnLocks     sync.Map // conversation id -> *sync.Mutex
}

// NewConversationService wires the service surface.
func NewConversationService(
	registry *orchestrator.Registry,
	st store.ConversationStore,
	orch *orchestrator.Orchestrator,
	hub *Hub,
	maxAgentTurns int,
	metrics http.Handler,
	logger *zap.Logger,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAgentTurns <= 0 {
		maxAgentTurns = orchestrator.DefaultConfig().MaxIterations
	}
	return &ConversationService{
		registry:      registry,
		store:         st,
		orch:          orch,
		hub:           hub,
		metrics:       metrics,
		logger:        logger.With(zap.String("component", "conversation_service")),
		maxAgentTurns: maxAgentTurns,
	}
}

// OnUserMessage implements transport.Handler. The turn runs on its own
// goroutine with a detached context: a dropped connection must not abort
// a turn mid-generation, the aggregate is persisted either way.
func (s *ConversationService) OnUserMessage(ctx context.Context, conversationID string, msg types.Message) {
	conv, err := s.resolve(ctx, conversationID)
	if err != nil {
		s.logger.Warn("user message for unknown conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		if emitErr := s.hub.Emit(types.Event{
			Kind:           types.EventError,
			ConversationID: conversationID,
			Error:          "conversation not found",
			Timestamp:      time.Now(),
		}); emitErr != nil {
			s.logger.Debug("error event not delivered", zap.Error(emitErr))
		}
		return
	}

	go s.runTurn(conv, msg)
}

// OnPlaybackAck implements transport.Handler.
func (s *ConversationService) OnPlaybackAck(ack types.PlaybackAck) {
	s.orch.AcknowledgeAudio(ack)
}

func (s *ConversationService) runTurn(conv *types.Conversation, msg types.Message) {
	lock, _ := s.turnLocks.LoadOrStore(conv.ID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	s.orch.ProcessUserMessage(context.Background(), conv, msg)
}

// resolve finds a conversation: active registry first, then the store.
// A store hit is re-registered so subsequent messages skip the load.
func (s *ConversationService) resolve(ctx context.Context, id string) (*types.Conversation, error) {
	if conv, ok := s.registry.Get(id); ok {
		return conv, nil
	}
	if s.store == nil {
		return nil, types.NewNotFoundError("conversation", id)
	}
	conv, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Touch()
	s.registry.Add(conv)
	return conv, nil
}

// Routes builds the HTTP mux.
func (s *ConversationService) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /conversations", s.handleCreate)
	mux.HandleFunc("GET /conversations", s.handleList)
	mux.HandleFunc("GET /conversations/{id}", s.handleGet)
	mux.HandleFunc("DELETE /conversations/{id}", s.handleDelete)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func (s *ConversationService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createConversationRequest struct {
	UserID   string              `json:"user_id"`
	Personas []types.Persona     `json:"personas"`
	Voice    types.VoiceSettings `json:"voice"`
}

func (s *ConversationService) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("body", "invalid JSON body").WithCause(err))
		return
	}
	if len(req.Personas) == 0 {
		writeError(w, types.NewValidationError("personas", "at least one persona is required"))
		return
	}
	seen := make(map[string]bool, len(req.Personas))
	for _, p := range req.Personas {
		if p.ID == "" || p.Name == "" {
			writeError(w, types.NewValidationError("personas", "persona id and name are required"))
			return
		}
		if seen[p.ID] {
			writeError(w, types.NewValidationError("personas", "duplicate persona id: "+p.ID))
			return
		}
		seen[p.ID] = true
	}

	conv := types.NewConversation(req.UserID, req.Personas, s.maxAgentTurns)
	conv.Voice = req.Voice
	s.registry.Add(conv)

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.Int("personas", len(conv.Personas)),
	)
	writeJSON(w, http.StatusCreated, conv)
}

func (s *ConversationService) handleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := s.resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *ConversationService) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, types.NewValidationError("user_id", "user_id query parameter is required"))
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []*types.Conversation{})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, types.NewValidationError("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	convs, err := s.store.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []*types.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *ConversationService) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.registry.Remove(r.Context(), id)
	if s.store != nil {
		if err := s.store.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebSocket upgrades the connection and attaches it to a
// conversation. The read loop runs on the request goroutine; the handler
// returns when the client disconnects.
func (s *ConversationService) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		writeError(w, types.NewValidationError("conversation_id", "conversation_id query parameter is required"))
		return
	}
	if _, err := s.resolve(r.Context(), conversationID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}

	session := transport.NewSession(conn, s.logger)
	s.hub.Register(conversationID, session)
	defer func() {
		s.hub.Unregister(conversationID, session)
		_ = session.Close()
	}()

	s.logger.Info("client connected",
		zap.String("conversation_id", conversationID))
	if err := session.ReadLoop(r.Context(), s); err != nil {
		s.logger.Info("client disconnected",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var typed *types.Error
	if !errors.As(err, &typed) {
		typed = types.NewError(types.ErrInternal, err.Error())
	}
	status := typed.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{
		"code":    typed.Code,
		"message": typed.Message,
		"field":   typed.Field,
	})
}
