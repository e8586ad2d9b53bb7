package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoProviderConfigured is returned when neither completion credential is set.
var ErrNoProviderConfigured = errors.New("config: no API keys provided, set OPENAI_API_KEY or PERPLEXITY_API_KEY")

// ErrWeakJWTSecret is returned when the admin listing is gated by tokens signed
// with a secret anyone can read.
var ErrWeakJWTSecret = errors.New("config: JWT_SECRET is too weak, set at least 32 random characters or ADMIN_LISTING_PUBLIC=true")

const minJWTSecretLength = 32

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
)

type Config struct {
	ServerPort   string
	Version      string
	FrontendURL  string
	StaticDir    string
	JWTSecret    string
	Admin        AdminConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Logging      LoggingConfig
	Providers    ProvidersConfig
	Conversation ConversationConfig
	RateLimit    RateLimitConfig

	// JWTSecretGenerated is set when JWT_SECRET was empty and a random
	// per-process secret was generated instead.
	JWTSecretGenerated bool
}

type AdminConfig struct {
	Email         string
	Password      string
	ListingPublic bool
}

type StoreConfig struct {
	Backend string
}

type PostgresConfig struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// ProviderConfig describes one OpenAI-compatible completion endpoint.
type ProviderConfig struct {
	Name        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Configured reports whether a credential is present.
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

type ProvidersConfig struct {
	OpenAI     ProviderConfig
	Perplexity ProviderConfig
}

type ConversationConfig struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
	ContextWindow int
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

func LoadConfig() (*Config, error) {
	cfg := load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStoreConfig loads the configuration for tools that only open the
// conversation store, so no provider key is required.
func LoadStoreConfig() (*Config, error) {
	cfg := load()
	if err := cfg.validateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() *Config {
	providerTimeout := parseDuration(envOrDefault("PROVIDER_TIMEOUT", "60s"), 60*time.Second)

	cfg := &Config{
		ServerPort:  envOrDefault("PORT", "3000"),
		Version:     envOrDefault("APP_VERSION", "1.0.0"),
		FrontendURL: envOrDefault("FRONTEND_URL", "http://localhost:3000"),
		StaticDir:   envOrDefault("STATIC_DIR", "web"),
		JWTSecret:   strings.TrimSpace(os.Getenv("JWT_SECRET")),
		Admin: AdminConfig{
			Email:         strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
			Password:      os.Getenv("ADMIN_PASSWORD"),
			ListingPublic: parseBool(envOrDefault("ADMIN_LISTING_PUBLIC", "false"), false),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(envOrDefault("STORE_BACKEND", StoreMemory)),
		},
		Postgres: PostgresConfig{
			DSN:               os.Getenv("POSTGRES_DSN"),
			MaxConns:          parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "8"), 8),
			MinConns:          parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1),
			MaxConnLifetime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(envOrDefault("POSTGRES_HEALTH_CHECK_PERIOD", "1m"), time.Minute),
			ConnectTimeout:    parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
			Database:       envOrDefault("MONGO_DATABASE", "marefa"),
			ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       parseInt(envOrDefault("REDIS_DB", "0"), 0),
			Prefix:   envOrDefault("REDIS_PREFIX", "marefa"),
		},
		Logging: LoggingConfig{
			Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
			Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
			EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
			ServiceName:  envOrDefault("SERVICE_NAME", "marefa-chat"),
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				Name:        "openai",
				APIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
				BaseURL:     strings.TrimRight(envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
				Model:       envOrDefault("OPENAI_MODEL", "gpt-4"),
				Temperature: 0.7,
				MaxTokens:   1500,
				Timeout:     providerTimeout,
			},
			Perplexity: ProviderConfig{
				Name:        "perplexity",
				APIKey:      strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY")),
				BaseURL:     strings.TrimRight(envOrDefault("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"), "/"),
				Model:       envOrDefault("PERPLEXITY_MODEL", "llama-3.1-sonar-small-128k-online"),
				Temperature: 0.7,
				MaxTokens:   1500,
				Timeout:     providerTimeout,
			},
		},
		Conversation: ConversationConfig{
			MaxAge:        parseDuration(envOrDefault("CONVERSATION_MAX_AGE", "24h"), 24*time.Hour),
			SweepInterval: parseDuration(envOrDefault("SWEEP_INTERVAL", "1h"), time.Hour),
			ContextWindow: parseInt(envOrDefault("CONTEXT_WINDOW", "20"), 20),
		},
		RateLimit: RateLimitConfig{
			Requests: parseInt(envOrDefault("RATE_LIMIT_REQUESTS", "100"), 100),
			Window:   parseDuration(envOrDefault("RATE_LIMIT_WINDOW", "15m"), 15*time.Minute),
			Burst:    parseInt(envOrDefault("RATE_LIMIT_BURST", "20"), 20),
		},
	}

	if cfg.Conversation.ContextWindow <= 0 {
		cfg.Conversation.ContextWindow = 20
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
		cfg.JWTSecretGenerated = true
	}

	return cfg
}

func randomSecret() string {
	buf := make([]byte, minJWTSecretLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("config: read random secret: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if !c.Providers.OpenAI.Configured() && !c.Providers.Perplexity.Configured() {
		return ErrNoProviderConfigured
	}
	if !c.Admin.ListingPublic && len(c.JWTSecret) < minJWTSecretLength {
		return ErrWeakJWTSecret
	}
	return c.validateStore()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreMongo, StoreRedis:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if c.Store.Backend == StorePostgres && strings.TrimSpace(c.Postgres.DSN) == "" {
		return fmt.Errorf("config: POSTGRES_DSN is required for the postgres store")
	}

	return nil
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(value string, fallback int) int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return i
}

func parseInt32(value string, fallback int32) int32 {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return int32(i)
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
