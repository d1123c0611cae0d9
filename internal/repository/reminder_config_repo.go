package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"koerner360/backend/internal/model"
)

// ReminderConfigRepository 提醒配置数据访问接口（单行）
type ReminderConfigRepository interface {
	Get(ctx context.Context) (*model.ReminderConfig, error)
	Save(ctx context.Context, cfg *model.ReminderConfig) error
	// InitIfAbsent 表为空时写入初始配置，已存在则不覆盖
	InitIfAbsent(ctx context.Context, cfg *model.ReminderConfig) error
}

type reminderConfigRepo struct {
	db *gorm.DB
}

// NewReminderConfigRepo 创建 ReminderConfigRepository 实例
func NewReminderConfigRepo(db *gorm.DB) ReminderConfigRepository {
	return &reminderConfigRepo{db: db}
}

func (r *reminderConfigRepo) Get(ctx context.Context) (*model.ReminderConfig, error) {
	var cfg model.ReminderConfig
	err := r.db.WithContext(ctx).
		Where("singleton = ?", true).
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *reminderConfigRepo) Save(ctx context.Context, cfg *model.ReminderConfig) error {
	cfg.Singleton = true
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *reminderConfigRepo) InitIfAbsent(ctx context.Context, cfg *model.ReminderConfig) error {
	cfg.Singleton = true
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(cfg).Error
}
