package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"reportjudge/internal/domain"
)

// RedisStore keeps processed ids in a set and progress in a hash under one key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedis(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "reportjudge"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) idsKey() string      { return s.prefix + ":processed" }
func (s *RedisStore) progressKey() string { return s.prefix + ":progress" }

func (s *RedisStore) Has(ctx context.Context, id string) (bool, error) {
	return s.client.SIsMember(ctx, s.idsKey(), id).Result()
}

func (s *RedisStore) MarkProcessed(ctx context.Context, id string, index, total int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.idsKey(), id)
		pipe.HSet(ctx, s.progressKey(),
			"current_index", index,
			"total_files", total,
			"updated_at", s.now().UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark %s processed: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Snapshot(ctx context.Context) (domain.Checkpoint, error) {
	cp := domain.Checkpoint{}
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return cp, err
	}
	// Sets are unordered.
	sort.Strings(ids)
	cp.ProcessedIDs = ids

	fields, err := s.client.HGetAll(ctx, s.progressKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return cp, err
	}
	if v, ok := fields["current_index"]; ok {
		cp.CurrentIndex, _ = strconv.Atoi(v)
	}
	if v, ok := fields["total_files"]; ok {
		cp.TotalFiles, _ = strconv.Atoi(v)
	}
	if v, ok := fields["updated_at"]; ok {
		cp.UpdatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	return cp, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.idsKey(), s.progressKey()).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
