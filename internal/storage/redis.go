package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisOptions holds the Redis connection configuration.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// DefaultRedisOptions returns the default Redis configuration.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Addr:      "localhost:6379",
		KeyPrefix: "mcqreview:",
	}
}

// RedisBackend stores snapshots as plain Redis string values.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", opts.Addr)
	}
	return &RedisBackend{client: client, prefix: opts.KeyPrefix}, nil
}

func (r *RedisBackend) key(key string) string {
	return r.prefix + key
}

// Get retrieves the snapshot stored under key.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to read snapshot %s", key)
	}
	return value, nil
}

// Put replaces the snapshot stored under key.
func (r *RedisBackend) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to write snapshot %s", key)
	}
	return nil
}

// Delete removes the snapshot stored under key.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete snapshot %s", key)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
