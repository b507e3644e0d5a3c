package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"go-dalil/internal/apperror"
	myMiddleware "go-dalil/internal/middleware"
	"go-dalil/pkg/response"
)

type Handler struct {
	conversations *ConversationRepository
	messages      *MessageRepository
	sync          *Synchronizer
	hub           *Hub
	logger        *slog.Logger
}

func NewHandler(conversations *ConversationRepository, messages *MessageRepository, sync *Synchronizer, hub *Hub) *Handler {
	return &Handler{
		conversations: conversations,
		messages:      messages,
		sync:          sync,
		hub:           hub,
		logger:        slog.Default(),
	}
}

type startConversationRequest struct {
	OtherID string `json:"other_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func conversationID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if err := uuid.Validate(id); err != nil {
		return "", apperror.ErrInvalidParams.WithMessage("invalid conversation id")
	}
	return id, nil
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.conversations.List(r.Context(), myMiddleware.Identity(r.Context()))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, convs)
}

// StartConversation finds or creates the conversation with other_id.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ErrorWithMsg(w, apperror.ErrInvalidParams, err.Error())
		return
	}
	if err := uuid.Validate(req.OtherID); err != nil {
		response.ErrorWithMsg(w, apperror.ErrInvalidParams, "invalid other_id")
		return
	}

	conv, err := h.conversations.FindOrCreate(r.Context(), myMiddleware.Identity(r.Context()), req.OtherID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, conv)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	conv, err := h.conversations.Get(r.Context(), myMiddleware.Identity(r.Context()), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, conv)
}

func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if _, err := h.conversations.Get(r.Context(), myMiddleware.Identity(r.Context()), id); err != nil {
		response.Error(w, err)
		return
	}
	msgs, _, err := h.messages.History(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Success(w, msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ErrorWithMsg(w, apperror.ErrInvalidParams, err.Error())
		return
	}

	msg, err := h.send(r.Context(), myMiddleware.Identity(r.Context()), id, req.Content)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, msg)
}

// send appends a message as identity after checking it takes part in the conversation.
func (h *Handler) send(ctx context.Context, identity, conversationID, content string) (*Message, error) {
	if err := uuid.Validate(conversationID); err != nil {
		return nil, apperror.ErrInvalidParams.WithMessage("invalid conversation id")
	}
	if _, err := h.conversations.Get(ctx, identity, conversationID); err != nil {
		return nil, err
	}
	return h.messages.Send(ctx, NewMessage{
		ConversationID: conversationID,
		SenderID:       identity,
		Content:        content,
	})
}

// ServeWs upgrades the connection and starts the client's pumps.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	identity := myMiddleware.Identity(r.Context())
	if identity == "" {
		response.Error(w, apperror.ErrUnauthenticated)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h, conn, identity)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Routes mounts the chat endpoints; the caller applies authentication.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/ws", h.ServeWs)
	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", h.ListConversations)
		r.Post("/", h.StartConversation)
		r.Get("/{id}", h.GetConversation)
		r.Get("/{id}/messages", h.GetChatHistory)
		r.Post("/{id}/messages", h.SendMessage)
	})
}
