// ABOUTME: Store interface and data types for chat-relay persistence
// ABOUTME: Defines Conversation, Message structs and the error kinds the relay reports

package store

import (
	"context"
	"errors"
	"time"
)

// Error kinds surfaced by Store implementations. Validation errors are
// terminal for the triggering call and never leave partial state behind.
var (
	// ErrInvalidParticipants is returned when a conversation is requested
	// for an empty participant id or for a user paired with itself.
	ErrInvalidParticipants = errors.New("invalid participants")

	// ErrConversationNotFound is returned when the referenced conversation
	// does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMessageNotFound is returned when a read acknowledgement references
	// a message that is not in the conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotAParticipant is returned when the acting user is not one of the
	// conversation's two participants.
	ErrNotAParticipant = errors.New("not a participant")

	// ErrEmptyContent is returned when message content is empty after trimming.
	ErrEmptyContent = errors.New("empty content")

	// ErrUnavailable is returned when the backing database cannot be reached
	// in time. Callers may retry; the store never retries on its own.
	ErrUnavailable = errors.New("store unavailable")
)

// MessageSummary is the denormalized tail of a conversation: the content and
// timestamp of its most recent message. Nil until the first message lands.
type MessageSummary struct {
	Content   string
	CreatedAt time.Time
}

// Conversation links exactly two distinct users. The participant pair is
// immutable after creation; LastMessage and UpdatedAt move forward once per
// accepted message.
type Conversation struct {
	ID           string
	ParticipantA string
	ParticipantB string
	LastMessage  *MessageSummary
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasParticipant reports whether userID is one of the conversation's two parties.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}

// OtherParticipant returns the party that is not userID, or "" if userID is
// not a participant.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// Message is a single chat message. Immutable once created except for the
// Read flag, which only the recipient's acknowledgement may flip.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	Read           bool
}

// Store defines the persistence contract shared by the realtime relay and
// the REST surface, so both observe the same conversation state.
type Store interface {
	// CreateConversation creates a new conversation between two distinct
	// users. Repeated calls for the same pair create distinct conversations.
	CreateConversation(ctx context.Context, participantA, participantB string) (*Conversation, error)

	// GetConversation retrieves a conversation by id.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns the conversations userID participates in,
	// most recently active first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// AppendMessage validates and persists a message. On success the
	// message's CreatedAt is strictly greater than the conversation's prior
	// UpdatedAt, and the conversation summary advances with it. Appends to
	// the same conversation are serialized; appends to different
	// conversations do not block each other.
	AppendMessage(ctx context.Context, conversationID, senderID, content string) (*Message, error)

	// ListMessages returns all messages of a conversation ordered by
	// CreatedAt ascending.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// MarkRead flags a message as read on behalf of readerID. A sender
	// cannot read its own message and re-reading is a no-op.
	MarkRead(ctx context.Context, conversationID, messageID, readerID string) error

	// Close releases any resources held by the store.
	Close() error
}
