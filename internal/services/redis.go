package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisCache provides caching and advisory locking backed by Redis
type RedisCache struct {
	client *redis.Client
	locker *redislock.Client
}

// NewRedisCache creates a new Redis cache client
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	GetLogger().Info("Redis connection established")
	return &RedisCache{
		client: client,
		locker: redislock.New(client),
	}, nil
}

// Set stores a value in cache with expiration
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves a value from cache
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Delete removes a key from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Obtain takes a best-effort advisory lock for the given key. Returns
// redislock.ErrNotObtained when another holder has it.
func (c *RedisCache) Obtain(ctx context.Context, key string, ttl time.Duration) (*redislock.Lock, error) {
	return c.locker.Obtain(ctx, key, ttl, nil)
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Locker returns the underlying lock client
func (c *RedisCache) Locker() *redislock.Client {
	return c.locker
}
