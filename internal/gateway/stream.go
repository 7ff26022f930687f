// ABOUTME: SSE stream handler plus the send and typing POST endpoints
// ABOUTME: Bridges presence registry event channels onto HTTP responses

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tasklane/chat-relay/internal/relay"
)

// SendMessageRequest is the JSON request body for POST /api/messages.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

// TypingRequest is the JSON request body for POST /api/typing.
type TypingRequest struct {
	ReceiverID string `json:"receiver_id"`
	IsTyping   bool   `json:"is_typing"`
}

// handleStream handles GET /api/stream. It registers the caller as online
// and streams relay events as SSE until the client disconnects. A second
// stream for the same user supersedes this one.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := g.identity(w, r)
	if id == nil {
		return
	}

	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	conn := g.registry.Connect(id.UserID, id.Role)
	defer g.registry.Disconnect(conn)

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, relay.EventConnected, map[string]string{"user_id": id.UserID})
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case ev, open := <-conn.Events():
			if !open {
				// Superseded by a newer stream or server shutdown.
				return
			}
			g.writeSSEEvent(w, ev.Type, ev.Data)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// handleSendMessage handles POST /api/messages. The message is persisted
// and fanned out before the HTTP response is written.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := g.identity(w, r)
	if id == nil {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ConversationID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	msg, err := g.relay.SendMessage(r.Context(), &relay.SendRequest{
		ConversationID: req.ConversationID,
		SenderID:       id.UserID,
		Content:        req.Content,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, relay.NewMessagePayload(msg))
}

// handleTyping handles POST /api/typing. Typing signals are fire-and-forget:
// the response is 202 whether or not the receiver was online.
func (g *Gateway) handleTyping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := g.identity(w, r)
	if id == nil {
		return
	}

	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ReceiverID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "receiver_id is required")
		return
	}

	g.relay.Typing(relay.TypingSignal{
		UserID:     id.UserID,
		ReceiverID: req.ReceiverID,
		IsTyping:   req.IsTyping,
	})

	w.WriteHeader(http.StatusAccepted)
}
