package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"koerner360/backend/internal/model"
)

// NotificationFilter 通知过滤条件（列表与批量已读共用）
type NotificationFilter struct {
	Type    string
	Urgency string
	Status  string
}

func (f NotificationFilter) apply(db *gorm.DB) *gorm.DB {
	if f.Type != "" {
		db = db.Where("type = ?", f.Type)
	}
	if f.Urgency != "" {
		db = db.Where("urgency = ?", f.Urgency)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	return db
}

// NotificationRepository 通知数据访问接口
type NotificationRepository interface {
	// CreateIfAbsent 依赖未读部分唯一索引去重：已有未读同类通知时返回 false
	CreateIfAbsent(ctx context.Context, n *model.Notification) (bool, error)
	ExistsUnread(ctx context.Context, userID, evaluationID, typ string) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Notification, error)
	List(ctx context.Context, userID string, filter NotificationFilter, page Page) ([]model.Notification, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) (int64, error)
	MarkAllRead(ctx context.Context, userID string, filter NotificationFilter, at time.Time) (int64, error)
	// MarkReadByEvaluation 评估完成或取消后，将其未读通知统一置为已读
	MarkReadByEvaluation(ctx context.Context, evaluationID string, at time.Time) (int64, error)
	// PurgeRead 仅删除已读且早于 before 的通知，未读通知不受影响
	PurgeRead(ctx context.Context, before time.Time) (int64, error)
}

type notificationRepo struct {
	db *gorm.DB
}

// NewNotificationRepo 创建 NotificationRepository 实例
func NewNotificationRepo(db *gorm.DB) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) CreateIfAbsent(ctx context.Context, n *model.Notification) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(n)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *notificationRepo) ExistsUnread(ctx context.Context, userID, evaluationID, typ string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND evaluation_id = ? AND type = ? AND status = ?",
			userID, evaluationID, typ, model.NotificationUnread).
		Count(&count).Error
	return count > 0, err
}

func (r *notificationRepo) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).
		Where("notification_id = ?", id).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *notificationRepo) List(ctx context.Context, userID string, filter NotificationFilter, page Page) ([]model.Notification, int64, error) {
	var list []model.Notification
	var total int64

	db := filter.apply(r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ?", userID))

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := page.apply(db).
		Order("created_at DESC").
		Find(&list).Error
	return list, total, err
}

func (r *notificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND status = ?", userID, model.NotificationUnread).
		Count(&count).Error
	return count, err
}

func (r *notificationRepo) MarkRead(ctx context.Context, id, userID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("notification_id = ? AND user_id = ? AND status = ?", id, userID, model.NotificationUnread).
		Updates(map[string]interface{}{
			"status":  model.NotificationRead,
			"read_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, userID string, filter NotificationFilter, at time.Time) (int64, error) {
	filter.Status = model.NotificationUnread
	db := filter.apply(r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ?", userID))
	result := db.Updates(map[string]interface{}{
		"status":  model.NotificationRead,
		"read_at": at,
	})
	return result.RowsAffected, result.Error
}

func (r *notificationRepo) MarkReadByEvaluation(ctx context.Context, evaluationID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("evaluation_id = ? AND status = ?", evaluationID, model.NotificationUnread).
		Updates(map[string]interface{}{
			"status":  model.NotificationRead,
			"read_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *notificationRepo) PurgeRead(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND read_at IS NOT NULL AND created_at < ?", model.NotificationRead, before).
		Delete(&model.Notification{})
	return result.RowsAffected, result.Error
}
