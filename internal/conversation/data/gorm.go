package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
)

// StateModel bot_state 表
type StateModel struct {
	Key       string     `gorm:"column:state_key;primaryKey;size:512"`
	Value     string     `gorm:"column:value;type:text;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

// TableName 表名
func (StateModel) TableName() string {
	return "bot_state"
}

// GormStore 基于 PostgreSQL 的状态存储
type GormStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewGormStore 创建存储；ttl 为 0 表示不过期
func NewGormStore(db *gorm.DB, ttl time.Duration) *GormStore {
	return &GormStore{db: db, ttl: ttl, now: time.Now}
}

func (s *GormStore) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	var model StateModel
	err := s.db.WithContext(ctx).
		Where("state_key = ? AND (expires_at IS NULL OR expires_at > ?)", key, s.now()).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get state: %w", err)
	}

	if err := json.Unmarshal([]byte(model.Value), dst); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value interface{}) error {
	model, err := s.toModel(key, value)
	if err != nil {
		return err
	}
	if err := s.upsert(s.db.WithContext(ctx), model).Error; err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("state_key = ?", key).Delete(&StateModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

// PurgeExpired 删除过期条目，返回删除数量
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.purge(s.db.WithContext(ctx))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge state: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) purge(tx *gorm.DB) *gorm.DB {
	return tx.Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).Delete(&StateModel{})
}

// runPurge 每隔 interval 调用一次 purge，直到 ctx 结束
func runPurge(ctx context.Context, interval time.Duration, purge func(context.Context) (int64, error), log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("state purge failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				log.Debug("expired state purged", zap.Int64("rows", n))
			}
		}
	}
}

// purgeInterval 清理周期取 ttl，最长一小时
func purgeInterval(ttl time.Duration) time.Duration {
	if ttl > time.Hour {
		return time.Hour
	}
	return ttl
}

func (s *GormStore) toModel(key string, value interface{}) (*StateModel, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode state %s: %w", key, err)
	}

	now := s.now()
	model := &StateModel{Key: key, Value: string(data), UpdatedAt: now}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		model.ExpiresAt = &exp
	}
	return model, nil
}

func (s *GormStore) upsert(tx *gorm.DB, model *StateModel) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(model)
}
