// ABOUTME: Wire event names and payload shapes for the realtime stream
// ABOUTME: The same payloads back the REST responses so both surfaces agree

package relay

import (
	"time"

	"github.com/tasklane/chat-relay/internal/store"
)

// Server-to-client event names on the realtime stream.
const (
	// EventConnected is the hello emitted when a stream is established,
	// confirming the handle is live.
	EventConnected = "connected"

	// EventNewMessage carries a persisted message to both parties.
	EventNewMessage = "new_message"

	// EventUserTyping carries an ephemeral typing hint to the receiver.
	EventUserTyping = "user_typing"

	// EventNewConversation notifies the two participants of a conversation
	// created on their behalf.
	EventNewConversation = "new_conversation"
)

// MessagePayload is the wire form of a persisted message.
type MessagePayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	Read           bool   `json:"read"`
}

// NewMessagePayload converts a stored message to its wire form.
func NewMessagePayload(msg *store.Message) MessagePayload {
	return MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.Format(time.RFC3339Nano),
		Read:           msg.Read,
	}
}

// MessageSummaryPayload is the wire form of a conversation's last-message summary.
type MessageSummaryPayload struct {
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ConversationPayload is the wire form of a conversation.
type ConversationPayload struct {
	ID           string                 `json:"id"`
	Participants []string               `json:"participants"`
	LastMessage  *MessageSummaryPayload `json:"last_message"`
	CreatedAt    string                 `json:"created_at"`
	UpdatedAt    string                 `json:"updated_at"`
}

// NewConversationPayload converts a stored conversation to its wire form.
func NewConversationPayload(conv *store.Conversation) ConversationPayload {
	p := ConversationPayload{
		ID:           conv.ID,
		Participants: []string{conv.ParticipantA, conv.ParticipantB},
		CreatedAt:    conv.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:    conv.UpdatedAt.Format(time.RFC3339Nano),
	}
	if conv.LastMessage != nil {
		p.LastMessage = &MessageSummaryPayload{
			Content:   conv.LastMessage.Content,
			CreatedAt: conv.LastMessage.CreatedAt.Format(time.RFC3339Nano),
		}
	}
	return p
}

// TypingPayload is the wire form of a forwarded typing hint.
type TypingPayload struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}
