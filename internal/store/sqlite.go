// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeFormat keeps nanosecond precision so the strictly-increasing
// per-conversation created_at order survives a round trip through TEXT
// columns. The fractional part is fixed-width, not RFC3339Nano: trailing
// zeros must be kept so lexicographic ORDER BY equals chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// locks serializes AppendMessage per conversation. Entries are never
	// removed; the map grows with the number of distinct conversations
	// touched by this process, which is bounded and small per deployment.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Pass ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// open a second one.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			last_message_content TEXT,
			last_message_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (participant_a <> participant_b)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_participant_a
			ON conversations(participant_a, updated_at);
		CREATE INDEX IF NOT EXISTS idx_conversations_participant_b
			ON conversations(participant_b, updated_at);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			read INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// convLock returns the append lock for a conversation, creating it on first use.
func (s *SQLiteStore) convLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}

// wrapDBErr wraps a database error, mapping timeouts, cancellations, and
// driver-level reachability failures to ErrUnavailable so callers see a
// single retryable kind.
func wrapDBErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrUnavailable)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		// Mask off extended result bits to get the primary code.
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_FULL:
			return fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// CreateConversation creates a conversation between two distinct users.
// Returns ErrInvalidParticipants when either id is empty or both are equal.
// There is deliberately no dedup on the participant pair: repeated calls
// create distinct conversations.
func (s *SQLiteStore) CreateConversation(ctx context.Context, participantA, participantB string) (*Conversation, error) {
	participantA = strings.TrimSpace(participantA)
	participantB = strings.TrimSpace(participantB)
	if participantA == "" || participantB == "" || participantA == participantB {
		return nil, ErrInvalidParticipants
	}

	now := time.Now().UTC()
	conv := &Conversation{
		ID:           uuid.New().String(),
		ParticipantA: participantA,
		ParticipantB: participantB,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO conversations (id, participant_a, participant_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.ParticipantA,
		conv.ParticipantB,
		conv.CreatedAt.Format(timeFormat),
		conv.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, wrapDBErr("inserting conversation", err)
	}

	s.logger.Debug("created conversation",
		"id", conv.ID,
		"participant_a", participantA,
		"participant_b", participantB,
	)
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrConversationNotFound if it doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, last_message_content, last_message_at, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	return s.scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var lastContent, lastAtStr sql.NullString
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&conv.ID,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&lastContent,
		&lastAtStr,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, wrapDBErr("querying conversation", err)
	}

	conv.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if lastContent.Valid && lastAtStr.Valid {
		lastAt, err := time.Parse(timeFormat, lastAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_message_at: %w", err)
		}
		conv.LastMessage = &MessageSummary{
			Content:   lastContent.String,
			CreatedAt: lastAt,
		}
	}

	return &conv, nil
}

// ListConversations returns the conversations userID participates in,
// ordered by most recent activity first.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	query := `
		SELECT id, participant_a, participant_b, last_message_content, last_message_at, created_at, updated_at
		FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, wrapDBErr("querying conversations", err)
	}
	defer rows.Close()

	conversations := make([]*Conversation, 0)
	for rows.Next() {
		conv, err := s.scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("iterating conversation rows", err)
	}

	return conversations, nil
}

// AppendMessage validates and persists a message, then advances the
// conversation's last-message summary in the same transaction. Appends to
// the same conversation are serialized by a per-conversation lock so the
// assigned created_at is strictly increasing within the conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, senderID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	lock := s.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBErr("beginning transaction", err)
	}
	defer tx.Rollback()

	var participantA, participantB, updatedAtStr string
	err = tx.QueryRowContext(ctx,
		`SELECT participant_a, participant_b, updated_at FROM conversations WHERE id = ?`,
		conversationID,
	).Scan(&participantA, &participantB, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, wrapDBErr("querying conversation", err)
	}

	if senderID != participantA && senderID != participantB {
		return nil, ErrNotAParticipant
	}

	updatedAt, err := time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	// Strictly after the conversation's current high-water mark, even if
	// the wall clock stalls or steps backwards.
	createdAt := time.Now().UTC()
	if !createdAt.After(updatedAt) {
		createdAt = updatedAt.Add(time.Microsecond)
	}

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      createdAt,
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, created_at, read)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, wrapDBErr("inserting message", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations
		 SET last_message_content = ?, last_message_at = ?, updated_at = ?
		 WHERE id = ?`,
		msg.Content, msg.CreatedAt.Format(timeFormat), msg.CreatedAt.Format(timeFormat), conversationID,
	)
	if err != nil {
		return nil, wrapDBErr("updating conversation summary", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBErr("committing message", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", conversationID,
		"sender_id", senderID,
	)
	return msg, nil
}

// ListMessages returns all messages for a conversation ordered by created_at
// ascending. Returns ErrConversationNotFound for an unknown conversation.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, conversation_id, sender_id, content, created_at, read
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, wrapDBErr("querying messages", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var msg Message
		var createdAtStr string
		var read int
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &createdAtStr, &read); err != nil {
			return nil, wrapDBErr("scanning message row", err)
		}
		msg.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		msg.Read = read != 0
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr("iterating message rows", err)
	}

	return messages, nil
}

// MarkRead sets read=true on a message on behalf of readerID. The reader
// must be a participant; a sender acknowledging its own message and an
// already-read message are both silent no-ops.
func (s *SQLiteStore) MarkRead(ctx context.Context, conversationID, messageID, readerID string) error {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(readerID) {
		return ErrNotAParticipant
	}

	var senderID string
	err = s.db.QueryRowContext(ctx,
		`SELECT sender_id FROM messages WHERE id = ? AND conversation_id = ?`,
		messageID, conversationID,
	).Scan(&senderID)
	if err == sql.ErrNoRows {
		return ErrMessageNotFound
	}
	if err != nil {
		return wrapDBErr("querying message", err)
	}

	if senderID == readerID {
		// A sender cannot read its own message.
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE messages SET read = 1 WHERE id = ?`,
		messageID,
	)
	if err != nil {
		return wrapDBErr("marking message read", err)
	}

	s.logger.Debug("marked message read",
		"message_id", messageID,
		"conversation_id", conversationID,
		"reader_id", readerID,
	)
	return nil
}
