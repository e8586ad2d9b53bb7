package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

// Postgres is a store.Store backed by a conversations table and an ordered
// messages table.
type Postgres struct {
	Pool *pgxpool.Pool
	opts store.Options
}

var _ store.Store = (*Postgres)(nil)

func NewPostgres(ctx context.Context, cfg utils.PostgresConfig, opts ...store.Option) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	return &Postgres{Pool: pool, opts: store.ApplyOptions(opts...)}, nil
}

func (p *Postgres) Close(ctx context.Context) error {
	_ = ctx
	if p == nil || p.Pool == nil {
		return nil
	}
	p.Pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.Pool.Ping(ctx)
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	statements := []string{
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS conversations (",
			"    id TEXT PRIMARY KEY,",
			"    created_at TIMESTAMPTZ NOT NULL,",
			"    last_activity TIMESTAMPTZ NOT NULL",
			")",
		}, "\n"),
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS messages (",
			"    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,",
			"    seq BIGINT NOT NULL,",
			"    role TEXT NOT NULL,",
			"    content TEXT NOT NULL,",
			"    created_at TIMESTAMPTZ NOT NULL,",
			"    PRIMARY KEY (conversation_id, seq)",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS conversations_last_activity_idx ON conversations (last_activity)",
	}

	for _, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}

	return nil
}

func (p *Postgres) Create(ctx context.Context) (string, error) {
	now := p.opts.Now()

	for {
		id := p.opts.NewID()
		tag, err := p.Pool.Exec(ctx,
			"INSERT INTO conversations (id, created_at, last_activity) VALUES ($1, $2, $2) ON CONFLICT (id) DO NOTHING",
			id, now)
		if err != nil {
			return "", fmt.Errorf("postgres: create conversation: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return id, nil
		}
	}
}

func (p *Postgres) Get(ctx context.Context, id string) (models.Conversation, error) {
	conv := models.Conversation{ID: id}

	err := p.Pool.QueryRow(ctx,
		"SELECT created_at, last_activity FROM conversations WHERE id = $1", id,
	).Scan(&conv.CreatedAt, &conv.LastActivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Conversation{}, store.ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("postgres: query conversation: %w", err)
	}

	rows, err := p.Pool.Query(ctx,
		"SELECT role, content, created_at FROM messages WHERE conversation_id = $1 ORDER BY seq ASC", id)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("postgres: query messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Message, error) {
		var msg models.Message
		err := row.Scan(&msg.Role, &msg.Content, &msg.Timestamp)
		return msg, err
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("postgres: scan messages: %w", err)
	}

	conv.Messages = messages
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.LastActivity = conv.LastActivity.UTC()
	return conv, nil
}

func (p *Postgres) AppendUserMessage(ctx context.Context, id, text string) (models.Conversation, error) {
	content, err := store.ValidateUserMessage(text)
	if err != nil {
		return models.Conversation{}, err
	}

	now := p.opts.Now()

	err = pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
		// The upsert takes the row lock that serialises appends on id.
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversations (id, created_at, last_activity) VALUES ($1, $2, $2)
			 ON CONFLICT (id) DO UPDATE SET last_activity = EXCLUDED.last_activity`,
			id, now); err != nil {
			return fmt.Errorf("postgres: upsert conversation: %w", err)
		}
		return insertMessage(ctx, tx, id, models.RoleUser, content, now)
	})
	if err != nil {
		return models.Conversation{}, err
	}

	return p.Get(ctx, id)
}

func (p *Postgres) AppendAssistantMessage(ctx context.Context, id, text string) (models.Message, error) {
	now := p.opts.Now()

	err := pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "UPDATE conversations SET last_activity = $2 WHERE id = $1", id, now)
		if err != nil {
			return fmt.Errorf("postgres: touch conversation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
		return insertMessage(ctx, tx, id, models.RoleAssistant, text, now)
	})
	if err != nil {
		return models.Message{}, err
	}

	return models.Message{Role: models.RoleAssistant, Content: text, Timestamp: now}, nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, id, role, content string, at time.Time) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO messages (conversation_id, seq, role, content, created_at)
		 SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4 FROM messages WHERE conversation_id = $1`,
		id, role, content, at)
	if err != nil {
		return fmt.Errorf("postgres: insert message: %w", err)
	}
	return nil
}

func (p *Postgres) ContextWindow(ctx context.Context, id string, maxMessages int) ([]models.ContextMessage, error) {
	if maxMessages <= 0 {
		maxMessages = store.DefaultContextWindow
	}

	var exists bool
	if err := p.Pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)", id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres: query conversation: %w", err)
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := p.Pool.Query(ctx,
		`SELECT role, content FROM (
		     SELECT seq, role, content FROM messages WHERE conversation_id = $1 ORDER BY seq DESC LIMIT $2
		 ) tail ORDER BY seq ASC`,
		id, maxMessages)
	if err != nil {
		return nil, fmt.Errorf("postgres: query context window: %w", err)
	}

	window, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.ContextMessage])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan context window: %w", err)
	}
	return window, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.Pool.Exec(ctx, "DELETE FROM conversations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *Postgres) SweepExpired(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := p.opts.Now().Add(-maxAge)

	rows, err := p.Pool.Query(ctx,
		"DELETE FROM conversations WHERE last_activity < $1 RETURNING id", cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: sweep conversations: %w", err)
	}

	removed, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan swept ids: %w", err)
	}
	return removed, nil
}

func (p *Postgres) List(ctx context.Context) ([]models.ConversationSummary, error) {
	rows, err := p.Pool.Query(ctx,
		`SELECT c.id, COUNT(m.seq), c.created_at, c.last_activity
		 FROM conversations c LEFT JOIN messages m ON m.conversation_id = c.id
		 GROUP BY c.id
		 ORDER BY c.last_activity DESC, c.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list conversations: %w", err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ConversationSummary, error) {
		var s models.ConversationSummary
		err := row.Scan(&s.ID, &s.MessageCount, &s.CreatedAt, &s.LastActivity)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan summaries: %w", err)
	}
	return summaries, nil
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
