package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wuwenbin0122/marefa.ai/internal/models"
	"github.com/wuwenbin0122/marefa.ai/internal/store"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

// Redis is a store.Store using, per conversation, a hash for timestamps and a
// list of JSON-encoded messages, plus a sorted set indexing last activity.
// Mutations run as Lua scripts so each one is atomic.
type Redis struct {
	Client *redis.Client
	prefix string
	opts   store.Options
}

var _ store.Store = (*Redis)(nil)

// KEYS: meta, messages, index. ARGV: id, now, score, message json, create flag.
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	if ARGV[5] ~= '1' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'created_at', ARGV[2])
end
redis.call('HSET', KEYS[1], 'last_activity', ARGV[2])
redis.call('RPUSH', KEYS[2], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// KEYS: meta, messages, index. ARGV: id, cutoff score.
var expireScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[3], ARGV[1])
if score and tonumber(score) < tonumber(ARGV[2]) then
	redis.call('DEL', KEYS[1], KEYS[2])
	redis.call('ZREM', KEYS[3], ARGV[1])
	return 1
end
return 0
`)

func NewRedis(ctx context.Context, cfg utils.RedisConfig, opts ...store.Option) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis: address is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "marefa"
	}

	return &Redis{Client: client, prefix: prefix, opts: store.ApplyOptions(opts...)}, nil
}

func (r *Redis) Close(ctx context.Context) error {
	_ = ctx
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

func (r *Redis) metaKey(id string) string     { return r.prefix + ":conv:" + id + ":meta" }
func (r *Redis) messagesKey(id string) string { return r.prefix + ":conv:" + id + ":messages" }
func (r *Redis) indexKey() string             { return r.prefix + ":conversations" }

func (r *Redis) keys(id string) []string {
	return []string{r.metaKey(id), r.messagesKey(id), r.indexKey()}
}

func (r *Redis) Create(ctx context.Context) (string, error) {
	now := r.opts.Now()
	stamp := now.Format(time.RFC3339Nano)

	for {
		id := r.opts.NewID()
		created, err := r.Client.HSetNX(ctx, r.metaKey(id), "created_at", stamp).Result()
		if err != nil {
			return "", fmt.Errorf("redis: create conversation: %w", err)
		}
		if !created {
			continue
		}

		_, err = r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.metaKey(id), "last_activity", stamp)
			pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: score(now), Member: id})
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("redis: index conversation: %w", err)
		}
		return id, nil
	}
}

func (r *Redis) Get(ctx context.Context, id string) (models.Conversation, error) {
	var (
		meta *redis.MapStringStringCmd
		raw  *redis.StringSliceCmd
	)
	_, err := r.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		meta = pipe.HGetAll(ctx, r.metaKey(id))
		raw = pipe.LRange(ctx, r.messagesKey(id), 0, -1)
		return nil
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("redis: get conversation: %w", err)
	}

	fields := meta.Val()
	if len(fields) == 0 {
		return models.Conversation{}, store.ErrNotFound
	}

	messages, err := decodeMessages(raw.Val())
	if err != nil {
		return models.Conversation{}, err
	}

	return models.Conversation{
		ID:           id,
		Messages:     messages,
		CreatedAt:    parseStamp(fields["created_at"]),
		LastActivity: parseStamp(fields["last_activity"]),
	}, nil
}

func (r *Redis) AppendUserMessage(ctx context.Context, id, text string) (models.Conversation, error) {
	content, err := store.ValidateUserMessage(text)
	if err != nil {
		return models.Conversation{}, err
	}

	if _, err := r.append(ctx, id, models.RoleUser, content, true); err != nil {
		return models.Conversation{}, err
	}
	return r.Get(ctx, id)
}

func (r *Redis) AppendAssistantMessage(ctx context.Context, id, text string) (models.Message, error) {
	return r.append(ctx, id, models.RoleAssistant, text, false)
}

func (r *Redis) append(ctx context.Context, id, role, content string, create bool) (models.Message, error) {
	now := r.opts.Now()
	msg := models.Message{Role: role, Content: content, Timestamp: now}

	payload, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("redis: encode message: %w", err)
	}

	createFlag := "0"
	if create {
		createFlag = "1"
	}

	ok, err := appendScript.Run(ctx, r.Client, r.keys(id),
		id, now.Format(time.RFC3339Nano), score(now), string(payload), createFlag,
	).Int()
	if err != nil {
		return models.Message{}, fmt.Errorf("redis: append message: %w", err)
	}
	if ok == 0 {
		return models.Message{}, store.ErrNotFound
	}
	return msg, nil
}

func (r *Redis) ContextWindow(ctx context.Context, id string, maxMessages int) ([]models.ContextMessage, error) {
	if maxMessages <= 0 {
		maxMessages = store.DefaultContextWindow
	}

	exists, err := r.Client.Exists(ctx, r.metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: context window: %w", err)
	}
	if exists == 0 {
		return nil, store.ErrNotFound
	}

	raw, err := r.Client.LRange(ctx, r.messagesKey(id), int64(-maxMessages), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: context window: %w", err)
	}

	messages, err := decodeMessages(raw)
	if err != nil {
		return nil, err
	}
	return store.Window(messages, maxMessages), nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.metaKey(id))
		pipe.Del(ctx, r.messagesKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete conversation: %w", err)
	}
	if del.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Redis) SweepExpired(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := score(r.opts.Now().Add(-maxAge))

	candidates, err := r.Client.ZRangeByScore(ctx, r.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(cutoff, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: find expired: %w", err)
	}

	var removed []string
	for _, id := range candidates {
		n, err := expireScript.Run(ctx, r.Client, r.keys(id), id, cutoff).Int()
		if err != nil {
			return removed, fmt.Errorf("redis: expire %s: %w", id, err)
		}
		if n == 1 {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (r *Redis) List(ctx context.Context) ([]models.ConversationSummary, error) {
	ids, err := r.Client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list conversations: %w", err)
	}

	metas := make([]*redis.MapStringStringCmd, len(ids))
	counts := make([]*redis.IntCmd, len(ids))
	_, err = r.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			metas[i] = pipe.HGetAll(ctx, r.metaKey(id))
			counts[i] = pipe.LLen(ctx, r.messagesKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: list conversations: %w", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(ids))
	for i, id := range ids {
		fields := metas[i].Val()
		if len(fields) == 0 {
			continue
		}
		summaries = append(summaries, models.ConversationSummary{
			ID:           id,
			MessageCount: int(counts[i].Val()),
			CreatedAt:    parseStamp(fields["created_at"]),
			LastActivity: parseStamp(fields["last_activity"]),
		})
	}
	store.SortSummaries(summaries)
	return summaries, nil
}

func decodeMessages(raw []string) ([]models.Message, error) {
	messages := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var msg models.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("redis: decode message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func parseStamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
