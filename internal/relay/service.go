// ABOUTME: Message relay coordinating the store and the presence registry
// ABOUTME: Persists inbound chat events, then fans them out to the live parties

package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tasklane/chat-relay/internal/presence"
	"github.com/tasklane/chat-relay/internal/store"
)

// Service relays chat events between the store and live connections. It is
// the only component that reads both: the store owns durable state, the
// registry owns reachability, and the relay stitches them together.
type Service struct {
	store    store.Store
	registry *presence.Registry
	logger   *slog.Logger

	// order serializes persist+fan-out per conversation so a connection
	// observes messages in exactly the order the store accepted them.
	mu    sync.Mutex
	order map[string]*sync.Mutex
}

// New creates a relay service. Pass nil logger for default.
func New(st store.Store, registry *presence.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		registry: registry,
		logger:   logger.With("component", "relay"),
		order:    make(map[string]*sync.Mutex),
	}
}

// SendRequest is an inbound chat event from either the realtime channel or
// the REST surface.
type SendRequest struct {
	ConversationID string
	SenderID       string
	Content        string
}

// SendMessage validates and persists an inbound chat event, then delivers
// the persisted message to the sender's own connection and, if online, to
// the other participant. A validation failure is terminal: nothing is
// persisted and nobody but the caller hears about it. An offline recipient
// is not an error; the durable copy is served by the next read.
func (s *Service) SendMessage(ctx context.Context, req *SendRequest) (*store.Message, error) {
	lock := s.orderLock(req.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, req.ConversationID, req.SenderID, req.Content)
	if err != nil {
		return nil, err
	}

	payload := NewMessagePayload(msg)

	// Sender first: its UI replaces the optimistic local copy with the
	// authoritative server-stamped record.
	s.deliver(req.SenderID, EventNewMessage, payload)

	if other := conv.OtherParticipant(req.SenderID); other != "" {
		s.deliver(other, EventNewMessage, payload)
	}

	return msg, nil
}

// orderLock returns the per-conversation ordering lock, creating it on first use.
func (s *Service) orderLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.order[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.order[conversationID] = lock
	}
	return lock
}

// deliver pushes an event to a user's live connection, if any. Offline users
// and full buffers drop silently.
func (s *Service) deliver(userID, event string, data any) {
	conn, ok := s.registry.Lookup(userID)
	if !ok {
		return
	}
	if !conn.Send(&presence.Event{Type: event, Data: data}) {
		s.logger.Debug("dropped event for unreachable connection",
			"user_id", userID,
			"event", event,
		)
	}
}

// TypingSignal is an ephemeral typing hint from one user to another.
type TypingSignal struct {
	UserID     string
	ReceiverID string
	IsTyping   bool
}

// Typing forwards a typing hint to the receiver's connection. Stateless:
// nothing is persisted, the sender gets no acknowledgement, and an offline
// receiver drops the signal without error.
func (s *Service) Typing(sig TypingSignal) {
	s.deliver(sig.ReceiverID, EventUserTyping, TypingPayload{
		UserID:   sig.UserID,
		IsTyping: sig.IsTyping,
	})
}

// CreateConversation creates a conversation and notifies the two
// participants' live connections. The emission is targeted: unrelated
// connections never learn the conversation exists.
func (s *Service) CreateConversation(ctx context.Context, participantA, participantB string) (*store.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, participantA, participantB)
	if err != nil {
		return nil, err
	}

	payload := NewConversationPayload(conv)
	s.deliver(conv.ParticipantA, EventNewConversation, payload)
	s.deliver(conv.ParticipantB, EventNewConversation, payload)

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"participant_a", conv.ParticipantA,
		"participant_b", conv.ParticipantB,
	)
	return conv, nil
}

// Conversations lists a user's conversations, most recently active first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// Messages lists a conversation's messages in persisted order.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// MarkRead records a read acknowledgement on behalf of readerID.
func (s *Service) MarkRead(ctx context.Context, conversationID, messageID, readerID string) error {
	return s.store.MarkRead(ctx, conversationID, messageID, readerID)
}
