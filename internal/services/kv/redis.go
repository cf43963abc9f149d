package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/the127/blobyard/internal/config"
)

func NewRedisStore(kvConfig config.KvConfig) Store {
	return &redisKvStore{
		client: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", kvConfig.Redis.Host, kvConfig.Redis.Port),
			Username: kvConfig.Redis.Username,
			Password: kvConfig.Redis.Password,
			DB:       kvConfig.Redis.Database,
		}),
	}
}

type redisKvStore struct {
	client *redis.Client
}

func (r *redisKvStore) Set(ctx context.Context, key string, value string, opts ...Option) error {
	options := buildOptions(opts)
	return r.client.Set(ctx, key, value, options.Expiration).Err()
}

func (r *redisKvStore) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return result, true, nil
}

func (r *redisKvStore) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (r *redisKvStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
