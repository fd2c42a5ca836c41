package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client Redis 客户端封装
type Client struct {
	config *Config
	logger *logger.Logger
	rdb    redis.UniversalClient
}

// New 根据部署模式创建客户端并做一次健康检查
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if cfg.EnableTLS {
		tlsConfig = &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}
	}

	var rdb redis.UniversalClient
	switch cfg.Mode {
	case ModeSingle:
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolTimeout:  cfg.PoolTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLSConfig:    tlsConfig,
		})
	case ModeSentinel:
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolTimeout:   cfg.PoolTimeout,
			MaxRetries:    cfg.MaxRetries,
			TLSConfig:     tlsConfig,
		})
	case ModeCluster:
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolTimeout:  cfg.PoolTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLSConfig:    tlsConfig,
		})
	}

	client := NewWithUniversal(rdb, cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis client initialized successfully",
		zap.String("mode", string(cfg.Mode)),
		zap.Int("db", cfg.DB),
	)
	return client, nil
}

// NewWithUniversal 包装已创建的 go-redis 客户端
func NewWithUniversal(rdb redis.UniversalClient, cfg *Config, log *logger.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{config: cfg, logger: log, rdb: rdb}
}

// Key 拼接带前缀的键
func (c *Client) Key(key string) string {
	return c.config.KeyPrefix + key
}

// Ping 健康检查
func (c *Client) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return ErrNotInitialized
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.logger.Error("redis ping failed", zap.Error(err))
		return err
	}
	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("close redis client failed", zap.Error(err))
		return err
	}
	c.logger.Info("redis client closed")
	return nil
}

// Universal 返回底层客户端
func (c *Client) Universal() redis.UniversalClient {
	return c.rdb
}
