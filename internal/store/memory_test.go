package store_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemory(store.WithClock(clock.Now))

	id, err := s.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Empty(t, conv.Messages)
	assert.Equal(t, clock.Now(), conv.CreatedAt)
	assert.Equal(t, clock.Now(), conv.LastActivity)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryCreateSkipsLiveIDs(t *testing.T) {
	ids := []string{"abc123", "abc123", "def456"}
	next := 0
	s := store.NewMemory(store.WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	first, err := s.Create(context.Background())
	require.NoError(t, err)
	second, err := s.Create(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "abc123", first)
	assert.Equal(t, "def456", second)
}

func TestMemoryAppendUserMessageUpserts(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	conv, err := s.AppendUserMessage(ctx, "unknown-id", "  hello  ")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "unknown-id", conv.ID)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "hello", conv.Messages[0].Content)

	conv, err = s.AppendUserMessage(ctx, "unknown-id", "again")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestMemoryAppendUserMessageValidation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := s.AppendUserMessage(ctx, "c1", "   \n\t")
	assert.ErrorIs(t, err, store.ErrEmptyMessage)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = s.AppendUserMessage(ctx, "c1", strings.Repeat("a", models.MaxUserMessageLength+1))
	assert.ErrorIs(t, err, store.ErrMessageTooLong)

	conv, err := s.AppendUserMessage(ctx, "c1", strings.Repeat("a", models.MaxUserMessageLength))
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1)

	// Characters, not bytes.
	conv, err = s.AppendUserMessage(ctx, "c1", strings.Repeat("س", models.MaxUserMessageLength))
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 2)

	// Rejected submissions never create a conversation.
	_, err = s.Get(ctx, "never-created")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryAppendAssistantMessage(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemory(store.WithClock(clock.Now))

	_, err := s.AppendAssistantMessage(ctx, "missing", "reply")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AppendUserMessage(ctx, "c1", "hello")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	msg, err := s.AppendAssistantMessage(ctx, "c1", "wa alaikum")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAssistant, msg.Role)

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "wa alaikum", conv.Messages[1].Content)
	assert.Equal(t, clock.Now(), conv.LastActivity)
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	_, err := s.AppendUserMessage(ctx, "c1", "hello")
	require.NoError(t, err)

	conv, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	conv.Messages[0].Content = "tampered"

	again, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Messages[0].Content)
}

func TestMemoryContextWindow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	for _, total := range []int{1, 19, 20, 21, 45} {
		id := fmt.Sprintf("conv-%d", total)
		for i := 0; i < total; i++ {
			if i%2 == 0 {
				_, err := s.AppendUserMessage(ctx, id, fmt.Sprintf("m%d", i))
				require.NoError(t, err)
				continue
			}
			_, err := s.AppendAssistantMessage(ctx, id, fmt.Sprintf("m%d", i))
			require.NoError(t, err)
		}

		window, err := s.ContextWindow(ctx, id, 20)
		require.NoError(t, err)

		want := total
		if want > 20 {
			want = 20
		}
		require.Len(t, window, want, "total=%d", total)

		first := total - want
		for i, msg := range window {
			assert.Equal(t, fmt.Sprintf("m%d", first+i), msg.Content)
			if (first+i)%2 == 0 {
				assert.Equal(t, models.RoleUser, msg.Role)
			} else {
				assert.Equal(t, models.RoleAssistant, msg.Role)
			}
		}
	}

	_, err := s.ContextWindow(ctx, "missing", 20)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryDeleteTwice(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	id, err := s.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), store.ErrNotFound)
}

func TestMemorySweepExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemory(store.WithClock(clock.Now))

	_, err := s.AppendUserMessage(ctx, "stale", "old question")
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	_, err = s.AppendUserMessage(ctx, "fresh", "new question")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	removed, err := s.SweepExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, removed)

	_, err = s.Get(ctx, "stale")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryListOrdersByActivity(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemory(store.WithClock(clock.Now))

	_, err := s.AppendUserMessage(ctx, "older", "one")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.AppendUserMessage(ctx, "newer", "two")
	require.NoError(t, err)
	_, err = s.AppendAssistantMessage(ctx, "newer", "three")
	require.NoError(t, err)

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "newer", summaries[0].ID)
	assert.Equal(t, 2, summaries[0].MessageCount)
	assert.Equal(t, "older", summaries[1].ID)
	assert.Equal(t, 1, summaries[1].MessageCount)
}

func TestMemoryConcurrentAppendsKeepOrder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.AppendUserMessage(ctx, "shared", fmt.Sprintf("w%d-%03d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	conv, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, conv.Messages, writers*perWriter)

	last := make(map[string]string)
	for _, msg := range conv.Messages {
		writer := strings.SplitN(msg.Content, "-", 2)[0]
		assert.Greater(t, msg.Content, last[writer])
		last[writer] = msg.Content
	}
}
