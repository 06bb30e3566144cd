package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"media-grabber/internal/logging"
	"media-grabber/internal/media"
)

// keyPrefix namespaces metadata keys so the database can be shared.
const keyPrefix = "media-grabber:meta:"

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
}

// RedisStore shares metadata between replicas through Redis. Expiry is
// delegated to Redis key TTLs. Redis errors degrade to cache misses.
type RedisStore struct {
	client *redis.Client
	stats  counters
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logging.Info("Connected to Redis metadata cache at %s (db %d)", config.Addr, config.DB)
	return &RedisStore{client: client}, nil
}

func redisKey(id media.SourceID) string {
	return keyPrefix + string(id)
}

// Get retrieves metadata from Redis.
func (c *RedisStore) Get(ctx context.Context, id media.SourceID) (*media.Metadata, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		logging.Warn("Redis get failed for %s: %v", id, err)
		c.stats.misses.Add(1)
		return nil, false
	}

	var meta media.Metadata
	if err := json.Unmarshal(val, &meta); err != nil {
		logging.Warn("Discarding undecodable cache entry for %s: %v", id, err)
		c.stats.misses.Add(1)
		return nil, false
	}

	c.stats.hits.Add(1)
	return &meta, true
}

// Set stores metadata in Redis with TTL.
func (c *RedisStore) Set(ctx context.Context, id media.SourceID, meta *media.Metadata, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	data, err := json.Marshal(meta)
	if err != nil {
		logging.Warn("Cache marshal failed for %s: %v", id, err)
		return
	}

	if err := c.client.Set(ctx, redisKey(id), data, ttl).Err(); err != nil {
		logging.Warn("Redis set failed for %s: %v", id, err)
		return
	}

	c.stats.sets.Add(1)
}

// Delete removes metadata from Redis.
func (c *RedisStore) Delete(ctx context.Context, id media.SourceID) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, redisKey(id)).Err(); err != nil {
		logging.Warn("Redis delete failed for %s: %v", id, err)
	}
}

// Stats returns cache statistics. CurrentSize counts this service's keys.
func (c *RedisStore) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	size := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		size++
	}
	if err := iter.Err(); err != nil {
		logging.Warn("Redis scan failed: %v", err)
	}

	return c.stats.snapshot("redis", size)
}

// HealthCheck checks if Redis is available.
func (c *RedisStore) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisStore) Close() error {
	return c.client.Close()
}

// New returns a Redis store when redisCfg.Addr is set and reachable, and a
// memory store otherwise.
func New(redisCfg RedisConfig, sweepInterval time.Duration) Store {
	if redisCfg.Addr != "" {
		store, err := NewRedisStore(redisCfg)
		if err == nil {
			return store
		}
		logging.Warn("Falling back to in-memory metadata cache: %v", err)
	}
	return NewMemoryStore(sweepInterval)
}
