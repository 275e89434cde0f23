package model

import "time"

// Message is one turn in a stored conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a stored chat with its messages and dining preferences.
type Conversation struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Title       string         `json:"title"`
	Model       string         `json:"model"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Preferences map[string]any `json:"preferences"`
	Messages    []Message      `json:"messages"`
}

// ConversationSummary is the listing shape for a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// CreateConversationRequest creates a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
	Model string `json:"model,omitempty"`
}

// UpdateConversationRequest renames a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// AddMessageRequest appends one message to a conversation.
type AddMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
