package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/latticeai/lattice/pkg/config"
)

// keyPrefix namespaces all cache keys in the shared Redis instance.
// Key format: "lattice:cache:{projectID}:{type}:{contentHash}".
const keyPrefix = "lattice:cache:"

// RedisStore implements Store on Redis. Entries are stored as JSON values
// without expiry; invalidation is explicit and per project.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	cfg.SetDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func redisKey(projectID string, typ Type, contentHash string) string {
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, projectID, typ, contentHash)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, projectID string, typ Type, contentHash string) (*Entry, error) {
	data, err := s.client.Get(ctx, redisKey(projectID, typ, contentHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &entry, nil
}

// Put implements Store. The Redis key doubles as the entry id.
func (s *RedisStore) Put(ctx context.Context, entry Entry) (string, error) {
	key := redisKey(entry.ProjectID, entry.Type, entry.ContentHash)
	entry.ID = key
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return "", fmt.Errorf("redis set failed: %w", err)
	}
	return key, nil
}

// DeleteByProject implements Store. Keys are discovered with SCAN to avoid
// blocking the server on large keyspaces.
func (s *RedisStore) DeleteByProject(ctx context.Context, projectID string, typ Type) (int, error) {
	pattern := fmt.Sprintf("%s%s:%s:*", keyPrefix, projectID, typ)

	deleted := 0
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("redis del failed: %w", err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan failed: %w", err)
	}
	return deleted, nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
