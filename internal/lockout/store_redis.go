package lockout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"civicgate/pkg/requestcontext"
)

const (
	redisKeyPrefix = "lockout:"

	fieldFailedAttempts = "failed_attempts"
	fieldLastAttemptAt  = "last_attempt_at"
	fieldLockedUntil    = "locked_until"
)

// RedisStore shares lockout state across gateway instances. Keys carry a TTL
// of twice the lockout duration, so Redis expiry replaces the periodic sweep.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed lockout store. The TTL should be
// twice the lockout duration, matching the sweep cutoff of the other stores.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) RecordFailure(ctx context.Context, identifier string) (*Record, error) {
	key := redisKeyPrefix + identifier
	now := requestcontext.Now(ctx)

	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, key, fieldFailedAttempts, 1)
	pipe.HSet(ctx, key, fieldLastAttemptAt, now.UnixMilli())
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record lockout failure: %w", err)
	}

	record, err := s.Get(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// Expired between increment and read; reconstruct from the pipeline result.
		record = &Record{
			Identifier:     identifier,
			FailedAttempts: int(incr.Val()),
			LastAttemptAt:  now,
		}
	}
	return record, nil
}

func (s *RedisStore) Get(ctx context.Context, identifier string) (*Record, error) {
	values, err := s.client.HGetAll(ctx, redisKeyPrefix+identifier).Result()
	if err != nil {
		return nil, fmt.Errorf("get lockout record: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	record := &Record{Identifier: identifier}
	if raw, ok := values[fieldFailedAttempts]; ok {
		record.FailedAttempts, _ = strconv.Atoi(raw)
	}
	if raw, ok := values[fieldLastAttemptAt]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			record.LastAttemptAt = time.UnixMilli(ms)
		}
	}
	if raw, ok := values[fieldLockedUntil]; ok && raw != "" {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			until := time.UnixMilli(ms)
			record.LockedUntil = &until
		}
	}
	return record, nil
}

func (s *RedisStore) Update(ctx context.Context, record *Record) error {
	key := redisKeyPrefix + record.Identifier

	fields := map[string]any{
		fieldFailedAttempts: record.FailedAttempts,
		fieldLastAttemptAt:  record.LastAttemptAt.UnixMilli(),
	}
	if record.LockedUntil != nil {
		fields[fieldLockedUntil] = record.LockedUntil.UnixMilli()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if record.LockedUntil == nil {
		pipe.HDel(ctx, key, fieldLockedUntil)
	}
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update lockout record: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+identifier).Err(); err != nil {
		return fmt.Errorf("clear lockout record: %w", err)
	}
	return nil
}

// DeleteStale is a no-op for Redis: per-key TTLs expire stale records.
func (s *RedisStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}
