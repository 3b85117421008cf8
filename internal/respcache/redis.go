package respcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisKeyPrefix namespaces response entries in Redis.
	DefaultRedisKeyPrefix = "chatrelay:resp:"

	// DefaultRedisTTL is the default time-to-live for cached responses.
	DefaultRedisTTL = time.Hour
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// KeyPrefix namespaces entries (defaults to "chatrelay:resp:")
	KeyPrefix string

	// TTL is the time-to-live for cached responses (defaults to 1 hour)
	TTL time.Duration
}

// RedisStore implements Store using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a new Redis-based response store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultRedisTTL
	}

	slog.Info("redis response cache connected", "key_prefix", keyPrefix, "ttl", ttl)

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}, nil
}

// Lookup retrieves the cached response text from Redis.
func (s *RedisStore) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	text, err := s.client.Get(ctx, s.keyPrefix+fingerprint).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get entry from redis: %w", err)
	}
	return text, true, nil
}

// Store writes the response text with the configured TTL, overwriting any
// existing entry.
func (s *RedisStore) Store(ctx context.Context, fingerprint, text string) error {
	if err := s.client.Set(ctx, s.keyPrefix+fingerprint, text, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set entry in redis: %w", err)
	}
	return nil
}

// Delete evicts a single entry.
func (s *RedisStore) Delete(ctx context.Context, fingerprint string) error {
	if err := s.client.Del(ctx, s.keyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("failed to delete entry from redis: %w", err)
	}
	return nil
}

// Flush evicts all entries under the key prefix.
func (s *RedisStore) Flush(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete entry from redis: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan redis keys: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
