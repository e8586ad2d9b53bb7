// Package chat runs server-side chat turns against the conversation store and
// the completion gateway.
package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
)

const defaultTurnTimeout = 90 * time.Second

// Completer is satisfied by *gateway.Gateway.
type Completer interface {
	Complete(ctx context.Context, messages []models.ContextMessage, preferAlternate bool) (string, error)
}

// TurnResult is the reply to one submitted message.
type TurnResult struct {
	Message        models.Message `json:"message"`
	ConversationID string         `json:"conversationId"`
}

type Service struct {
	store       store.Store
	completer   Completer
	logger      *zap.Logger
	window      int
	turnTimeout time.Duration
	turns       *keyedMutex
}

type Option func(*Service)

// WithContextWindow sets how many trailing messages reach the provider.
func WithContextWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithTurnTimeout bounds the provider call, which outlives client cancellation.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.turnTimeout = d
		}
	}
}

func NewService(st store.Store, completer Completer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:       st,
		completer:   completer,
		logger:      logger.Named("chat"),
		window:      store.DefaultContextWindow,
		turnTimeout: defaultTurnTimeout,
		turns:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage appends the user's text, asks a provider for a reply over the
// trailing context window and appends that reply. Turns on one conversation
// run one at a time.
func (s *Service) SendMessage(ctx context.Context, conversationID, text string, usePerplexity bool) (TurnResult, error) {
	if _, err := store.ValidateUserMessage(text); err != nil {
		return TurnResult{}, err
	}

	unlock := s.turns.Lock(conversationID)
	defer unlock()

	// The turn completes even if the caller goes away.
	turnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)
	defer cancel()

	if _, err := s.store.AppendUserMessage(turnCtx, conversationID, text); err != nil {
		return TurnResult{}, err
	}

	window, err := s.store.ContextWindow(turnCtx, conversationID, s.window)
	if err != nil {
		return TurnResult{}, err
	}

	reply, err := s.completer.Complete(turnCtx, window, usePerplexity)
	if err != nil {
		s.logger.Warn("turn failed",
			zap.String("conversation_id", conversationID),
			zap.Bool("use_perplexity", usePerplexity),
			zap.Error(err),
		)
		return TurnResult{}, err
	}

	msg, err := s.store.AppendAssistantMessage(turnCtx, conversationID, reply)
	if err != nil {
		return TurnResult{}, err
	}

	s.logger.Debug("turn completed",
		zap.String("conversation_id", conversationID),
		zap.Int("context_messages", len(window)),
	)

	return TurnResult{Message: msg, ConversationID: conversationID}, nil
}

func (s *Service) Create(ctx context.Context) (string, error) {
	return s.store.Create(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (models.Conversation, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.ConversationSummary, error) {
	return s.store.List(ctx)
}
