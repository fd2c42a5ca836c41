package redis

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Set 设置键值，expiration 为 0 表示不过期
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := c.rdb.Set(ctx, c.Key(key), value, expiration).Err()
	if err != nil {
		c.logger.Error("redis set failed", zap.String("key", key), zap.Error(err))
	}
	return err
}

// GetBytes 获取键值；键不存在时返回 ErrNil
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, c.Key(key)).Bytes()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
	}
	return val, err
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.Key(k)
	}

	n, err := c.rdb.Del(ctx, prefixed...).Result()
	if err != nil {
		c.logger.Error("redis del failed", zap.Strings("keys", keys), zap.Error(err))
	}
	return n, err
}

// TTL 获取键剩余过期时间
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.TTL(ctx, c.Key(key)).Result()
}
