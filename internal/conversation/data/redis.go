package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lk2023060901/agent-bridge/internal/pkg/redis"
)

// RedisStore 基于 Redis 的状态存储，key 自动加上客户端前缀
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore ttl 为 0 表示不过期
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := s.client.GetBytes(ctx, stateKey(key))
	if err != nil {
		if redis.IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("redis get state: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	if err := s.client.Set(ctx, stateKey(key), data, s.ttl); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Del(ctx, stateKey(key)); err != nil {
		return fmt.Errorf("redis delete state: %w", err)
	}
	return nil
}

func stateKey(key string) string {
	return "state:" + key
}
