package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "burstfence:stats:"

var counterFields = []string{"consumed", "rejected", "refilled", "overflowed", "cancelled"}

// RedisStore keeps counters in one Redis hash per bucket, so several
// instances can report into the same totals.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration // How long idle counters are kept in Redis
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string        // Redis address (e.g., "localhost:6379")
	Password string        // Redis password (empty for no auth)
	DB       int           // Redis database number
	TTL      time.Duration // TTL for idle counters (default: 24 hours)
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ttl := config.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func redisKey(bucket string) string {
	return keyPrefix + bucket
}

func (c Counters) fields() []int64 {
	return []int64{c.Consumed, c.Rejected, c.Refilled, c.Overflowed, c.Cancelled}
}

// Add increments the counters for bucket and refreshes its TTL
func (s *RedisStore) Add(ctx context.Context, bucket string, delta Counters) error {
	if delta.IsZero() {
		return nil
	}
	key := redisKey(bucket)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, v := range delta.fields() {
			if v != 0 {
				pipe.HIncrBy(ctx, key, counterFields[i], v)
			}
		}
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: add %s: %v", ErrStoreFailed, bucket, err)
	}
	return nil
}

// Get retrieves the counters for bucket
func (s *RedisStore) Get(ctx context.Context, bucket string) (Counters, error) {
	vals, err := s.client.HGetAll(ctx, redisKey(bucket)).Result()
	if err != nil {
		return Counters{}, fmt.Errorf("%w: get %s: %v", ErrStoreFailed, bucket, err)
	}

	parsed := make([]int64, len(counterFields))
	for i, field := range counterFields {
		raw, ok := vals[field]
		if !ok {
			continue
		}
		if parsed[i], err = strconv.ParseInt(raw, 10, 64); err != nil {
			return Counters{}, fmt.Errorf("%w: field %s of %s: %v", ErrStoreFailed, field, bucket, err)
		}
	}

	return Counters{
		Consumed:   parsed[0],
		Rejected:   parsed[1],
		Refilled:   parsed[2],
		Overflowed: parsed[3],
		Cancelled:  parsed[4],
	}, nil
}

// Buckets lists recorded buckets in name order
func (s *RedisStore) Buckets(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan: %v", ErrStoreFailed, err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the counters for bucket
func (s *RedisStore) Delete(ctx context.Context, bucket string) error {
	if err := s.client.Del(ctx, redisKey(bucket)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreFailed, bucket, err)
	}
	return nil
}

// Clear removes all burstfence counters from Redis
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: clear: %v", ErrStoreFailed, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: clear: %v", ErrStoreFailed, err)
	}
	return nil
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
