package repository

import (
	"context"

	"gorm.io/gorm"

	"koerner360/backend/internal/model"
)

// AuditLogRepository 审计日志数据访问接口
type AuditLogRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityID string, page Page) ([]model.AuditLog, int64, error)
}

type auditLogRepo struct {
	db *gorm.DB
}

// NewAuditLogRepo 创建 AuditLogRepository 实例
func NewAuditLogRepo(db *gorm.DB) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Create(ctx context.Context, log *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *auditLogRepo) ListByEntity(ctx context.Context, entityType, entityID string, page Page) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	db := r.db.WithContext(ctx).
		Model(&model.AuditLog{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := page.apply(db).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, total, err
}
