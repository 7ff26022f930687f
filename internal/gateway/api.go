// ABOUTME: REST handlers for the conversation and message query surface
// ABOUTME: Covers listing, creation, history, and read acknowledgements

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"github.com/tasklane/chat-relay/internal/auth"
	"github.com/tasklane/chat-relay/internal/relay"
	"github.com/tasklane/chat-relay/internal/store"
)

// CreateConversationRequest is the JSON request body for POST /api/conversations.
// The caller becomes one participant, participant_id the other.
type CreateConversationRequest struct {
	ParticipantID string `json:"participant_id"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []relay.ConversationPayload `json:"conversations"`
}

// ConversationMessagesResponse is the JSON response for GET /api/conversations/{id}/messages.
type ConversationMessagesResponse struct {
	ConversationID string                 `json:"conversation_id"`
	Messages       []relay.MessagePayload `json:"messages"`
}

// MarkReadRequest is the JSON request body for POST /api/conversations/{id}/read.
type MarkReadRequest struct {
	MessageID string `json:"message_id"`
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON success response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// writeServiceError maps store errors onto HTTP statuses.
func (g *Gateway) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, store.ErrMessageNotFound):
		g.sendJSONError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, store.ErrNotAParticipant):
		g.sendJSONError(w, http.StatusForbidden, "not a participant in this conversation")
	case errors.Is(err, store.ErrInvalidParticipants):
		g.sendJSONError(w, http.StatusBadRequest, "invalid participants")
	case errors.Is(err, store.ErrEmptyContent):
		g.sendJSONError(w, http.StatusBadRequest, "content must not be empty")
	case errors.Is(err, store.ErrUnavailable):
		g.sendJSONError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// identity pulls the authenticated caller off the request, writing a 401
// if the middleware never ran.
func (g *Gateway) identity(w http.ResponseWriter, r *http.Request) *auth.Identity {
	id := auth.FromContext(r.Context())
	if id == nil {
		g.sendJSONError(w, http.StatusUnauthorized, "not authenticated")
	}
	return id
}

// handleConversations handles GET (list) and POST (create) on /api/conversations.
func (g *Gateway) handleConversations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListConversations(w, r)
	case http.MethodPost:
		g.handleCreateConversation(w, r)
	default:
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleListConversations returns the caller's conversations, most recently
// active first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id := g.identity(w, r)
	if id == nil {
		return
	}

	conversations, err := g.relay.Conversations(r.Context(), id.UserID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, ListConversationsResponse{
		Conversations: lo.Map(conversations, func(c *store.Conversation, _ int) relay.ConversationPayload {
			return relay.NewConversationPayload(c)
		}),
	})
}

// handleCreateConversation opens a conversation between the caller and the
// requested peer.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	id := g.identity(w, r)
	if id == nil {
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ParticipantID) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "participant_id is required")
		return
	}

	conv, err := g.relay.CreateConversation(r.Context(), id.UserID, req.ParticipantID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, relay.NewConversationPayload(conv))
}

// handleConversationSubresource routes /api/conversations/{id}/messages and
// /api/conversations/{id}/read.
func (g *Gateway) handleConversationSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	conversationID := parts[0]

	switch parts[1] {
	case "messages":
		switch r.Method {
		case http.MethodGet:
			g.handleListMessages(w, r, conversationID)
		case http.MethodPost:
			g.handleSendToConversation(w, r, conversationID)
		default:
			g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "read":
		if r.Method != http.MethodPost {
			g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		g.handleMarkRead(w, r, conversationID)
	default:
		g.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

// handleListMessages returns a conversation's full history in send order.
// Only participants may read it.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request, conversationID string) {
	id := g.identity(w, r)
	if id == nil {
		return
	}

	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}
	if !conv.HasParticipant(id.UserID) {
		g.sendJSONError(w, http.StatusForbidden, "not a participant in this conversation")
		return
	}

	messages, err := g.relay.Messages(r.Context(), conversationID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, ConversationMessagesResponse{
		ConversationID: conversationID,
		Messages: lo.Map(messages, func(m *store.Message, _ int) relay.MessagePayload {
			return relay.NewMessagePayload(m)
		}),
	})
}

// handleSendToConversation accepts a message posted directly to a
// conversation resource. Same pipeline as POST /api/messages.
func (g *Gateway) handleSendToConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	id := g.identity(w, r)
	if id == nil {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := g.relay.SendMessage(r.Context(), &relay.SendRequest{
		ConversationID: conversationID,
		SenderID:       id.UserID,
		Content:        req.Content,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, relay.NewMessagePayload(msg))
}

// handleMarkRead records a read acknowledgement for a single message.
func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request, conversationID string) {
	id := g.identity(w, r)
	if id == nil {
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MessageID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	if err := g.relay.MarkRead(r.Context(), conversationID, req.MessageID, id.UserID); err != nil {
		g.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
