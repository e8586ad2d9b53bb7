package db

import (
	"context"
	"errors"

	"github.com/wuwenbin0122/marefa.ai/internal/store"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

// ErrEphemeralStore is returned by OpenPersistent for the in-process memory
// backend, whose contents vanish with the process.
var ErrEphemeralStore = errors.New("db: memory store is process-local, set STORE_BACKEND to postgres, mongo or redis")

// OpenPersistent is Open for tools that inspect data written by a running
// server, so the memory backend is refused.
func OpenPersistent(ctx context.Context, cfg *utils.Config, opts ...store.Option) (store.Store, error) {
	switch cfg.Store.Backend {
	case utils.StorePostgres, utils.StoreMongo, utils.StoreRedis:
		return Open(ctx, cfg, opts...)
	default:
		return nil, ErrEphemeralStore
	}
}

// Open connects the conversation store selected by cfg.Store.Backend and
// prepares its schema.
func Open(ctx context.Context, cfg *utils.Config, opts ...store.Option) (store.Store, error) {
	switch cfg.Store.Backend {
	case utils.StorePostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, opts...)
		if err != nil {
			return nil, err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close(ctx)
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close(ctx)
			return nil, err
		}
		return pg, nil
	case utils.StoreMongo:
		mg, err := NewMongo(ctx, cfg.Mongo, opts...)
		if err != nil {
			return nil, err
		}
		if err := mg.EnsureCollections(ctx); err != nil {
			mg.Close(ctx)
			return nil, err
		}
		return mg, nil
	case utils.StoreRedis:
		return NewRedis(ctx, cfg.Redis, opts...)
	default:
		return store.NewMemory(opts...), nil
	}
}
