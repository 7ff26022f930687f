// Package store provides durable persistence for conversations and messages.
//
// The Store interface is the single read/write contract shared by the
// realtime relay and the REST surface, so both observe identical state. The
// SQLite implementation auto-creates its schema and serializes message
// appends per conversation, giving each conversation a strictly increasing
// created_at sequence that downstream consumers can rely on for display
// order.
//
// Entities:
//
//   - Conversation: an immutable pair of two distinct participants plus a
//     moving last-message summary.
//   - Message: immutable once created, except for the Read flag which only
//     the recipient's acknowledgement can set.
//
// Error kinds (ErrConversationNotFound, ErrNotAParticipant, ErrEmptyContent,
// ErrInvalidParticipants, ErrMessageNotFound, ErrUnavailable) are sentinel
// values intended for errors.Is checks at API boundaries.
package store
