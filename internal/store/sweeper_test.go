package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/marefa.ai/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSweeperSweepOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := store.NewMemory(store.WithClock(clock.Now))

	_, err := s.AppendUserMessage(ctx, "a", "hi")
	require.NoError(t, err)
	_, err = s.AppendUserMessage(ctx, "b", "hi")
	require.NoError(t, err)

	sweeper := store.NewSweeper(s, time.Hour, 24*time.Hour, zap.NewNop())
	assert.Equal(t, 0, sweeper.SweepOnce(ctx))

	clock.Advance(24*time.Hour + time.Second)
	assert.Equal(t, 2, sweeper.SweepOnce(ctx))

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	s := store.NewMemory(store.WithClock(clock.Now))

	_, err := s.AppendUserMessage(context.Background(), "stale", "hi")
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	sweeper := store.NewSweeper(s, 5*time.Millisecond, 24*time.Hour, zap.NewNop())
	go func() { done <- sweeper.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := s.Get(context.Background(), "stale")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
