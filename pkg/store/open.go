package store

import (
	"context"
	"fmt"

	"github.com/pixperk/objmutex/pkg/client"
	"github.com/pixperk/objmutex/pkg/config"
	"github.com/pixperk/objmutex/pkg/time"
	"github.com/redis/go-redis/v9"
)

// opens the configured backend scoped to bucket, wrapped with metrics and tracing
func Open(ctx context.Context, cfg config.StoreConfig, bucket string, clock time.Clock) (Store, error) {
	if !knownBackend(cfg.Backend) {
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case BackendS3:
		s, err = NewS3Store(cfg, bucket)

	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Endpoint,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if perr := rdb.Ping(ctx).Err(); perr != nil {
			rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Endpoint, perr)
		}
		s = NewRedisStore(rdb, bucket, cfg.PageSize)

	case BackendFile:
		s, err = NewBoltStore(cfg.Path, bucket, clock, cfg.PageSize)

	case BackendSQL:
		s, err = OpenSQLStore(cfg, bucket, clock)

	case BackendRaft:
		s, err = client.NewClient(client.ParseEndpoints(cfg.Endpoint), bucket, cfg.Timeout)

	case BackendMemory:
		s = NewMemoryStore(clock, cfg.PageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}

	return Instrument(s, cfg.Backend), nil
}
