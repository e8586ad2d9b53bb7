package models

import "time"

// Message roles accepted in a conversation log.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxUserMessageLength is the character limit for user-authored content.
const MaxUserMessageLength = 4000

// Message is a single immutable entry of a conversation log.
type Message struct {
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Conversation is an ordered, append-only message log.
type Conversation struct {
	ID           string    `json:"id" bson:"_id"`
	Messages     []Message `json:"messages" bson:"messages"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
	LastActivity time.Time `json:"lastActivity" bson:"last_activity"`
}

// Clone returns a deep copy so callers never share the stored slice.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// Summary reduces the conversation to its listing fields.
func (c Conversation) Summary() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		LastActivity: c.LastActivity,
	}
}

// ConversationSummary is the administrative listing view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// ContextMessage is the provider payload unit: a message without its timestamp.
type ContextMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
