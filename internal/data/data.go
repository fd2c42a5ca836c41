package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/conf"
	"github.com/lk2023060901/agent-bridge/internal/pkg/database"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/redis"
)

// Data 状态存储依赖的外部连接，只建立所选驱动需要的连接
type Data struct {
	Driver string
	Redis  *redis.Client
	DB     *database.DB
	Logger *logger.Logger
}

// NewData 按 state.driver 建立连接，返回的 cleanup 负责关闭
func NewData(config *conf.StateConfig, log *logger.Logger) (*Data, func(), error) {
	d := &Data{Driver: config.Driver, Logger: log}

	switch config.Driver {
	case conf.DriverMemory, "":
		d.Driver = conf.DriverMemory

	case conf.DriverRedis:
		client, err := redis.New(&config.Redis, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init redis: %w", err)
		}
		d.Redis = client

	case conf.DriverPostgres:
		db, err := database.New(&config.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init database: %w", err)
		}
		d.DB = db

	default:
		return nil, nil, fmt.Errorf("unknown state driver %q", config.Driver)
	}

	cleanup := func() {
		if d.Redis != nil {
			if err := d.Redis.Close(); err != nil {
				log.Error("failed to close redis", zap.Error(err))
			}
		}
		if d.DB != nil {
			if err := d.DB.Close(); err != nil {
				log.Error("failed to close database", zap.Error(err))
			}
		}
		log.Info("state connections closed", zap.String("driver", d.Driver))
	}

	log.Info("state connections ready", zap.String("driver", d.Driver))
	return d, cleanup, nil
}

// HealthCheck 检查已建立的连接
func (d *Data) HealthCheck(ctx context.Context) error {
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}
