// Package store owns conversation state: the ordered message logs, the
// context window handed to completion providers and time-based expiry.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
)

// DefaultContextWindow is the number of trailing messages sent to a provider.
const DefaultContextWindow = 20

var (
	ErrNotFound       = errors.New("store: conversation not found")
	ErrValidation     = errors.New("store: invalid message")
	ErrEmptyMessage   = fmt.Errorf("%w: message is required and must be a non-empty string", ErrValidation)
	ErrMessageTooLong = fmt.Errorf("%w: message too long, maximum %d characters allowed", ErrValidation, models.MaxUserMessageLength)
)

// Store is the conversation store contract. Implementations must make
// AppendUserMessage an atomic upsert-and-append per conversation.
type Store interface {
	// Create inserts an empty conversation under a fresh id.
	Create(ctx context.Context) (string, error)

	// Get returns a copy of the conversation or ErrNotFound.
	Get(ctx context.Context, id string) (models.Conversation, error)

	// AppendUserMessage validates text, creates the conversation when id is
	// unknown and appends a user message.
	AppendUserMessage(ctx context.Context, id, text string) (models.Conversation, error)

	// AppendAssistantMessage appends to an existing conversation only.
	AppendAssistantMessage(ctx context.Context, id, text string) (models.Message, error)

	// ContextWindow returns the trailing maxMessages messages, oldest first.
	ContextWindow(ctx context.Context, id string, maxMessages int) ([]models.ContextMessage, error)

	// Delete removes the conversation or reports ErrNotFound.
	Delete(ctx context.Context, id string) error

	// SweepExpired removes conversations idle for longer than maxAge and
	// returns their ids.
	SweepExpired(ctx context.Context, maxAge time.Duration) ([]string, error)

	// List returns summaries ordered by most recent activity.
	List(ctx context.Context) ([]models.ConversationSummary, error)

	Close(ctx context.Context) error
}

// Options carries the injectable clock and id source shared by all backends.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

type Option func(*Options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// WithIDGenerator overrides conversation id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Options) {
		if newID != nil {
			o.NewID = newID
		}
	}
}

// ApplyOptions resolves opts over the defaults.
func ApplyOptions(opts ...Option) Options {
	o := Options{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ValidateUserMessage checks a user submission and returns the trimmed text.
// The length limit applies to the submitted text in characters.
func ValidateUserMessage(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > models.MaxUserMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}

// Window strips timestamps from the trailing maxMessages messages.
func Window(messages []models.Message, maxMessages int) []models.ContextMessage {
	if maxMessages <= 0 {
		maxMessages = DefaultContextWindow
	}

	start := 0
	if len(messages) > maxMessages {
		start = len(messages) - maxMessages
	}

	out := make([]models.ContextMessage, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		out = append(out, models.ContextMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// Expired reports whether lastActivity is older than maxAge at now.
func Expired(lastActivity, now time.Time, maxAge time.Duration) bool {
	return now.Sub(lastActivity) > maxAge
}
