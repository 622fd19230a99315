package circulate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/circulate/storage"
	badgerstore "github.com/poiesic/circulate/storage/badger"
	"github.com/poiesic/circulate/storage/memory"
	mongostore "github.com/poiesic/circulate/storage/mongo"
	redisstore "github.com/poiesic/circulate/storage/redis"
	"github.com/poiesic/circulate/storage/sqlite"
)

// OpenStore opens the backend selected by cfg. Index failures are logged to
// logger, or to slog.Default() when logger is nil.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (storage.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy := cfg.retryPolicy()
	switch cfg.Backend {
	case BackendBadger:
		opts := []badgerstore.Option{badgerstore.WithRetryPolicy(policy)}
		if logger != nil {
			opts = append(opts, badgerstore.WithLogger(logger))
		}
		return badgerstore.Open(cfg.Path, cfg.InMemory, opts...)
	case BackendRedis:
		return redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			redisstore.WithKeyPrefix(cfg.RedisPrefix),
			redisstore.WithRetryPolicy(policy),
			redisstore.WithLogger(logger))
	case BackendSQLite:
		return sqlite.Open(ctx, cfg.Path, sqlite.WithRetryPolicy(policy), sqlite.WithLogger(logger))
	case BackendMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, mongostore.WithLogger(logger))
	case BackendMemory:
		return memory.NewStore(memory.WithLogger(logger)), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Open opens the backend selected by cfg and wraps it in a Library. The
// store reports to the library's logger.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Library, error) {
	lib := New(nil, opts...)
	store, err := OpenStore(ctx, cfg, lib.logger)
	if err != nil {
		return nil, err
	}
	lib.store = store
	return lib, nil
}
