package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
)

// Memory keeps conversations in a process-wide map. A single RWMutex makes
// every operation, including the sweep, atomic with respect to the others.
type Memory struct {
	opts Options

	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

// NewMemory constructs an empty in-memory store.
func NewMemory(opts ...Option) *Memory {
	return &Memory{
		opts:          ApplyOptions(opts...),
		conversations: make(map[string]*models.Conversation),
	}
}

func (m *Memory) Create(ctx context.Context) (string, error) {
	_ = ctx

	now := m.opts.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.opts.NewID()
	for {
		if _, exists := m.conversations[id]; !exists {
			break
		}
		id = m.opts.NewID()
	}

	m.conversations[id] = &models.Conversation{
		ID:           id,
		Messages:     []models.Message{},
		CreatedAt:    now,
		LastActivity: now,
	}
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.Conversation, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return models.Conversation{}, ErrNotFound
	}
	return conv.Clone(), nil
}

func (m *Memory) AppendUserMessage(ctx context.Context, id, text string) (models.Conversation, error) {
	_ = ctx

	content, err := ValidateUserMessage(text)
	if err != nil {
		return models.Conversation{}, err
	}

	now := m.opts.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		conv = &models.Conversation{
			ID:        id,
			Messages:  []models.Message{},
			CreatedAt: now,
		}
		m.conversations[id] = conv
	}

	conv.Messages = append(conv.Messages, models.Message{
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: now,
	})
	conv.LastActivity = now

	return conv.Clone(), nil
}

func (m *Memory) AppendAssistantMessage(ctx context.Context, id, text string) (models.Message, error) {
	_ = ctx

	now := m.opts.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return models.Message{}, ErrNotFound
	}

	msg := models.Message{
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: now,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = now

	return msg, nil
}

func (m *Memory) ContextWindow(ctx context.Context, id string, maxMessages int) ([]models.ContextMessage, error) {
	_ = ctx

	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return Window(conv.Messages, maxMessages), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	_ = ctx

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	return nil
}

func (m *Memory) SweepExpired(ctx context.Context, maxAge time.Duration) ([]string, error) {
	_ = ctx

	now := m.opts.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, conv := range m.conversations {
		if Expired(conv.LastActivity, now, maxAge) {
			delete(m.conversations, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed, nil
}

func (m *Memory) List(ctx context.Context) ([]models.ConversationSummary, error) {
	_ = ctx

	m.mu.RLock()
	out := make([]models.ConversationSummary, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, conv.Summary())
	}
	m.mu.RUnlock()

	SortSummaries(out)
	return out, nil
}

// Close drops every conversation held in memory.
func (m *Memory) Close(ctx context.Context) error {
	_ = ctx

	m.mu.Lock()
	m.conversations = make(map[string]*models.Conversation)
	m.mu.Unlock()
	return nil
}

// SortSummaries orders summaries by last activity, newest first, then id.
func SortSummaries(summaries []models.ConversationSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastActivity.Equal(summaries[j].LastActivity) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
}
