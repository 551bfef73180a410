// Package checkpoint records which reports have been fully evaluated so an interrupted
// batch can resume.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"reportjudge/internal/config"
	"reportjudge/internal/domain"
)

// Store is the durable processed-set. MarkProcessed is persisted before it returns.
type Store interface {
	Has(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string, index, total int) error
	Snapshot(ctx context.Context) (domain.Checkpoint, error)
	Clear(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.CheckpointBackend.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.CheckpointBackend {
	case "", "file":
		return OpenFile(cfg.ResolvedCheckpointPath())
	case "sqlite":
		return OpenSQLite(cfg.ResolvedCheckpointPath())
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedis(client, cfg.RedisKeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint_backend %q", cfg.CheckpointBackend)
	}
}
