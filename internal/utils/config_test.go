package utils

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigRequiresProviderKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PERPLEXITY_API_KEY", "")

	if _, err := LoadConfig(); !errors.Is(err, ErrNoProviderConfigured) {
		t.Fatalf("expected ErrNoProviderConfigured, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PERPLEXITY_API_KEY", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("CONVERSATION_MAX_AGE", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ADMIN_LISTING_PUBLIC", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Backend != StoreMemory {
		t.Fatalf("expected memory backend, got %s", cfg.Store.Backend)
	}
	if cfg.Conversation.MaxAge != 24*time.Hour {
		t.Fatalf("expected 24h retention, got %s", cfg.Conversation.MaxAge)
	}
	if cfg.Conversation.SweepInterval != time.Hour {
		t.Fatalf("expected hourly sweep, got %s", cfg.Conversation.SweepInterval)
	}
	if cfg.Providers.OpenAI.Model != "gpt-4" || cfg.Providers.OpenAI.MaxTokens != 1500 {
		t.Fatalf("unexpected openai defaults: %+v", cfg.Providers.OpenAI)
	}
	if cfg.Providers.Perplexity.Configured() {
		t.Fatalf("perplexity should not be configured")
	}
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("PERPLEXITY_API_KEY", "pplx-test")
	t.Setenv("STORE_BACKEND", "cassandra")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadStoreConfigSkipsProviderCheck(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PERPLEXITY_API_KEY", "")
	t.Setenv("STORE_BACKEND", "redis")

	cfg, err := LoadStoreConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Backend != StoreRedis {
		t.Fatalf("expected redis backend, got %s", cfg.Store.Backend)
	}

	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "")
	if _, err := LoadStoreConfig(); err == nil {
		t.Fatalf("expected error for postgres without dsn")
	}
}

func TestLoadConfigJWTSecret(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ADMIN_LISTING_PUBLIC", "")
	t.Setenv("JWT_SECRET", "")

	first, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.JWTSecretGenerated || len(first.JWTSecret) < minJWTSecretLength {
		t.Fatalf("expected a generated secret, got %q (generated=%v)", first.JWTSecret, first.JWTSecretGenerated)
	}
	if first.JWTSecret == second.JWTSecret {
		t.Fatalf("expected a fresh secret per load")
	}

	t.Setenv("JWT_SECRET", "dev-secret")
	if _, err := LoadConfig(); !errors.Is(err, ErrWeakJWTSecret) {
		t.Fatalf("expected ErrWeakJWTSecret, got %v", err)
	}

	t.Setenv("ADMIN_LISTING_PUBLIC", "true")
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("expected weak secret to be allowed with a public listing: %v", err)
	}

	t.Setenv("ADMIN_LISTING_PUBLIC", "false")
	strong := "0123456789abcdef0123456789abcdef0123"
	t.Setenv("JWT_SECRET", strong)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.JWTSecret != strong || cfg.JWTSecretGenerated {
		t.Fatalf("expected configured secret to be kept, got %q", cfg.JWTSecret)
	}
}
