package data

import (
	"context"
	"fmt"

	"github.com/lk2023060901/agent-bridge/internal/conf"
	"github.com/lk2023060901/agent-bridge/internal/conversation/biz"
	infra "github.com/lk2023060901/agent-bridge/internal/data"
)

// NewStore 按驱动创建状态存储；postgres 且 ttl > 0 时启动后台清理，由 cleanup 停止
func NewStore(d *infra.Data, config *conf.StateConfig) (biz.Store, func(), error) {
	switch d.Driver {
	case conf.DriverMemory:
		return NewMemoryStore(config.TTL), func() {}, nil

	case conf.DriverRedis:
		return NewRedisStore(d.Redis, config.TTL), func() {}, nil

	case conf.DriverPostgres:
		if err := d.DB.AutoMigrate(&StateModel{}); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate state table: %w", err)
		}
		store := NewGormStore(d.DB.DB, config.TTL)
		if config.TTL <= 0 {
			return store, func() {}, nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			runPurge(ctx, purgeInterval(config.TTL), store.PurgeExpired, d.Logger.Named("state"))
		}()
		return store, func() {
			cancel()
			<-done
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown state driver %q", d.Driver)
}
