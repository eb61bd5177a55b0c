package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores resolved profiles with a TTL so listing pages do not
// hammer the identity provider for the same creators over and over.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: "profile:",
		ttl:    ttl,
	}, nil
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

// Get returns the cached profile for a user id. The second return value is
// false on a cache miss.
func (c *RedisCache) Get(ctx context.Context, userID string) (Profile, bool, error) {
	jsonData, err := c.client.Get(ctx, c.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("cache lookup: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal([]byte(jsonData), &profile); err != nil {
		return Profile{}, false, fmt.Errorf("unmarshal cached profile: %w", err)
	}
	return profile, true, nil
}

// Set stores a profile under its id for the cache TTL.
func (c *RedisCache) Set(ctx context.Context, profile Profile) error {
	jsonData, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := c.client.Set(ctx, c.key(profile.ID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache profile: %w", err)
	}
	return nil
}

// Invalidate drops a cached profile.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate profile: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
