package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/samber/mo"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// NewRedisPool creates a connection pool for the configured Redis server
func NewRedisPool(config *domain.StoreConfig) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", config.RedisAddr,
				redis.DialPassword(config.RedisPassword),
				redis.DialDatabase(config.RedisDB),
				redis.DialConnectTimeout(5*time.Second))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// RedisKVStore implements KVStore with plain Redis strings under a key prefix
type RedisKVStore struct {
	pool   *redis.Pool
	prefix string
}

// NewRedisKVStore creates a key-value store whose keys are "<prefix>:<namespace>:<key>"
func NewRedisKVStore(pool *redis.Pool, prefix, namespace string) *RedisKVStore {
	p := namespace + ":"
	if prefix != "" {
		p = prefix + ":" + p
	}
	return &RedisKVStore{pool: pool, prefix: p}
}

// Get returns the value stored under key
func (s *RedisKVStore) Get(ctx context.Context, key string) (mo.Option[[]byte], error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return mo.None[[]byte](), fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	value, err := redis.Bytes(conn.Do("GET", s.prefix+key))
	if err == redis.ErrNil {
		return mo.None[[]byte](), nil
	}
	if err != nil {
		return mo.None[[]byte](), fmt.Errorf("failed to get %s: %w", key, err)
	}
	return mo.Some(value), nil
}

// Put stores value under key
func (s *RedisKVStore) Put(ctx context.Context, key string, value []byte) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SET", s.prefix+key, value); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *RedisKVStore) Delete(ctx context.Context, key string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get redis connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", s.prefix+key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
