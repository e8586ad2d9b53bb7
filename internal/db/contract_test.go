package db_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Millisecond)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// exerciseStore runs the behaviour every backend must share. The clock must be
// the one the store was built with.
func exerciseStore(t *testing.T, s store.Store, clock *testClock) {
	t.Helper()
	ctx := context.Background()
	start := clock.Now()

	id, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	conv, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(conv.Messages) != 0 {
		t.Fatalf("expected empty conversation, got %d messages", len(conv.Messages))
	}

	clock.Set(start.Add(time.Second))
	conv, err = s.AppendUserMessage(ctx, id, "  What is Salah?  ")
	if err != nil {
		t.Fatalf("append user message failed: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "What is Salah?" {
		t.Fatalf("unexpected messages after user append: %+v", conv.Messages)
	}

	if _, err := s.AppendAssistantMessage(ctx, id, "Salah is the ritual prayer."); err != nil {
		t.Fatalf("append assistant message failed: %v", err)
	}

	conv, err = s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after turn failed: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != models.RoleUser || conv.Messages[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected role order: %s, %s", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if conv.LastActivity.Before(conv.CreatedAt) {
		t.Fatalf("last activity %v precedes creation %v", conv.LastActivity, conv.CreatedAt)
	}

	if _, err := s.AppendUserMessage(ctx, id, "   "); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for blank message, got %v", err)
	}
	if _, err := s.AppendUserMessage(ctx, id, strings.Repeat("a", models.MaxUserMessageLength+1)); !errors.Is(err, store.ErrMessageTooLong) {
		t.Fatalf("expected too long error, got %v", err)
	}

	for i := 0; i < 24; i++ {
		if _, err := s.AppendUserMessage(ctx, id, "follow up"); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	window, err := s.ContextWindow(ctx, id, store.DefaultContextWindow)
	if err != nil {
		t.Fatalf("context window failed: %v", err)
	}
	if len(window) != store.DefaultContextWindow {
		t.Fatalf("expected %d messages in window, got %d", store.DefaultContextWindow, len(window))
	}

	// Appending under an unknown id creates the conversation.
	unknown := "unknown-" + id
	conv, err = s.AppendUserMessage(ctx, unknown, "hello")
	if err != nil {
		t.Fatalf("upsert append failed: %v", err)
	}
	if conv.ID != unknown || len(conv.Messages) != 1 {
		t.Fatalf("unexpected upserted conversation: %+v", conv)
	}

	if _, err := s.AppendAssistantMessage(ctx, "missing-"+id, "reply"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for assistant append, got %v", err)
	}
	if _, err := s.ContextWindow(ctx, "missing-"+id, 20); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for context window, got %v", err)
	}

	summaries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	found := false
	for _, summary := range summaries {
		if summary.ID == id {
			found = true
			if summary.MessageCount != 26 {
				t.Fatalf("expected 26 messages in summary, got %d", summary.MessageCount)
			}
		}
	}
	if !found {
		t.Fatalf("conversation %s missing from listing", id)
	}

	// Age the first conversation past the retention window.
	clock.Set(start.Add(48 * time.Hour))
	fresh, err := s.Create(ctx)
	if err != nil {
		t.Fatalf("create fresh failed: %v", err)
	}

	removed, err := s.SweepExpired(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !containsID(removed, id) || !containsID(removed, unknown) {
		t.Fatalf("expected %s and %s to be swept, got %v", id, unknown, removed)
	}
	if containsID(removed, fresh) {
		t.Fatalf("fresh conversation %s was swept", fresh)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected swept conversation to be gone, got %v", err)
	}

	if err := s.Delete(ctx, fresh); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := s.Delete(ctx, fresh); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	exerciseIDIsolation(t, s, "iso-"+id)
}

// exerciseIDIsolation checks that ids extending another id with storage-like
// suffixes never reach that conversation's data.
func exerciseIDIsolation(t *testing.T, s store.Store, victim string) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.AppendUserMessage(ctx, victim, "hello"); err != nil {
		t.Fatalf("append to %s failed: %v", victim, err)
	}
	if _, err := s.AppendAssistantMessage(ctx, victim, "hi"); err != nil {
		t.Fatalf("assistant append to %s failed: %v", victim, err)
	}

	assertIntact := func(step string) {
		t.Helper()
		conv, err := s.Get(ctx, victim)
		if err != nil {
			t.Fatalf("%s: get %s failed: %v", step, victim, err)
		}
		if len(conv.Messages) != 2 || conv.Messages[0].Content != "hello" || conv.Messages[1].Content != "hi" {
			t.Fatalf("%s: conversation %s changed: %+v", step, victim, conv.Messages)
		}
	}

	others := []string{victim + ":messages", victim + ":meta", victim + ":", "{" + victim + "}"}
	for _, other := range others {
		if err := s.Delete(ctx, other); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found deleting %s, got %v", other, err)
		}
		if _, err := s.Get(ctx, other); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected not found getting %s, got %v", other, err)
		}
	}
	assertIntact("after deleting unknown ids")

	for _, other := range others {
		conv, err := s.AppendUserMessage(ctx, other, "intruder")
		if err != nil {
			t.Fatalf("append to %s failed: %v", other, err)
		}
		if conv.ID != other || len(conv.Messages) != 1 {
			t.Fatalf("unexpected conversation for %s: %+v", other, conv)
		}
	}
	assertIntact("after appending to neighbouring ids")

	for _, other := range others {
		if err := s.Delete(ctx, other); err != nil {
			t.Fatalf("delete %s failed: %v", other, err)
		}
	}
	assertIntact("after deleting neighbouring ids")

	if err := s.Delete(ctx, victim); err != nil {
		t.Fatalf("delete %s failed: %v", victim, err)
	}
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
