// Package conversation persists chat history and per-conversation dining
// preferences in an embedded SQLite database. The debug unit harness also
// instantiates throwaway stores under a temp directory, so Open must stay
// cheap and self-migrating.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Hanny658/Meta-Recommendation/internal/model"
)

// ErrNotFound is returned when a conversation does not exist for the user.
var ErrNotFound = errors.New("conversation: not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	preferences TEXT NOT NULL DEFAULT '{}',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id     TEXT PRIMARY KEY,
	preferences TEXT NOT NULL DEFAULT '{}',
	updated_at  TIMESTAMP NOT NULL
);
`

// Store is a SQLite-backed conversation store.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the database file under dir and runs migrations.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("conversation: create dir: %w", err)
	}
	dsn := filepath.Join(dir, "conversations.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("conversation: open db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("conversation: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new conversation for the user.
func (s *Store) Create(ctx context.Context, userID, title, modelName string) (*model.Conversation, error) {
	if title == "" {
		title = "New Conversation"
	}
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Model:       modelName,
		CreatedAt:   now,
		UpdatedAt:   now,
		Preferences: map[string]any{},
		Messages:    []model.Message{},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, model, preferences, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '{}', ?, ?)`,
		conv.ID, userID, title, modelName, now, now)
	if err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}
	return conv, nil
}

// Get returns a conversation with its messages and preferences.
func (s *Store) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	var conv model.Conversation
	var prefsRaw string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, model, preferences, created_at, updated_at
		 FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Model, &prefsRaw, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get: %w", err)
	}

	conv.Preferences = map[string]any{}
	// Preferences column is written by this store; a parse failure means
	// manual tampering and is treated as empty rather than fatal.
	_ = json.Unmarshal([]byte(prefsRaw), &conv.Preferences)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: get messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = []model.Message{}
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	return &conv, rows.Err()
}

// List returns conversation summaries for a user, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.model, c.created_at, c.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		 FROM conversations c WHERE c.user_id = ?
		 ORDER BY c.updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list: %w", err)
	}
	defer rows.Close()

	out := []model.ConversationSummary{}
	for rows.Next() {
		var s model.ConversationSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Model, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("conversation: scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Rename updates the conversation title.
func (s *Store) Rename(ctx context.Context, userID, conversationID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, time.Now().UTC(), conversationID, userID)
	if err != nil {
		return fmt.Errorf("conversation: rename: %w", err)
	}
	return requireRow(res)
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, userID, conversationID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID)
	if err != nil {
		return fmt.Errorf("conversation: delete: %w", err)
	}
	return requireRow(res)
}

// AddMessage appends one message and bumps the conversation's updated_at.
func (s *Store) AddMessage(ctx context.Context, userID, conversationID, role, content string) (*model.Message, error) {
	now := time.Now().UTC()
	msg := &model.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("conversation: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ? AND user_id = ?`,
		now, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: touch: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, conversationID, role, content, now); err != nil {
		return nil, fmt.Errorf("conversation: add message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("conversation: commit: %w", err)
	}
	return msg, nil
}

// Preferences returns the stored dining preferences for a conversation.
func (s *Store) Preferences(ctx context.Context, userID, conversationID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT preferences FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: preferences: %w", err)
	}
	prefs := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &prefs)
	return prefs, nil
}

// UpdatePreferences replaces the stored preferences wholesale.
func (s *Store) UpdatePreferences(ctx context.Context, userID, conversationID string, prefs map[string]any) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("conversation: marshal preferences: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET preferences = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(raw), time.Now().UTC(), conversationID, userID)
	if err != nil {
		return fmt.Errorf("conversation: update preferences: %w", err)
	}
	return requireRow(res)
}

// UserPreferences returns a user's default dining preferences. A user
// with nothing stored gets an empty map, not ErrNotFound: defaults are
// created lazily on first write.
func (s *Store) UserPreferences(ctx context.Context, userID string) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT preferences FROM user_preferences WHERE user_id = ?`, userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: user preferences: %w", err)
	}
	prefs := map[string]any{}
	_ = json.Unmarshal([]byte(raw), &prefs)
	return prefs, nil
}

// SetUserPreferences replaces a user's default preferences wholesale.
func (s *Store) SetUserPreferences(ctx context.Context, userID string, prefs map[string]any) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("conversation: marshal user preferences: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_preferences (user_id, preferences, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET preferences = excluded.preferences, updated_at = excluded.updated_at`,
		userID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("conversation: set user preferences: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
