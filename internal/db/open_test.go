package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/wuwenbin0122/marefa.ai/internal/db"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

func TestOpenMemoryBackend(t *testing.T) {
	cfg := &utils.Config{Store: utils.StoreConfig{Backend: utils.StoreMemory}}

	clock := newTestClock()
	s, err := db.Open(context.Background(), cfg, store.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	defer s.Close(context.Background())

	if _, ok := s.(*store.Memory); !ok {
		t.Fatalf("expected *store.Memory, got %T", s)
	}

	exerciseStore(t, s, clock)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	cfg := &utils.Config{Store: utils.StoreConfig{Backend: utils.StorePostgres}}
	cfg.Postgres.DSN = "::not a dsn::"

	if _, err := db.Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for invalid dsn")
	}
}

func TestOpenPersistentRefusesMemoryBackend(t *testing.T) {
	for _, backend := range []string{utils.StoreMemory, ""} {
		cfg := &utils.Config{Store: utils.StoreConfig{Backend: backend}}
		s, err := db.OpenPersistent(context.Background(), cfg)
		if !errors.Is(err, db.ErrEphemeralStore) {
			t.Fatalf("backend %q: expected ErrEphemeralStore, got %v", backend, err)
		}
		if s != nil {
			t.Fatalf("backend %q: expected no store", backend)
		}
	}

	cfg := &utils.Config{Store: utils.StoreConfig{Backend: utils.StorePostgres}}
	cfg.Postgres.DSN = "::not a dsn::"
	if _, err := db.OpenPersistent(context.Background(), cfg); err == nil || errors.Is(err, db.ErrEphemeralStore) {
		t.Fatalf("expected postgres connection error, got %v", err)
	}
}
