package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"koerner360/backend/internal/model"
	pkgerrors "koerner360/backend/pkg/errors"
)

// ReminderFilter 提醒列表过滤条件（运维视图）
type ReminderFilter struct {
	EvaluationID string
	UserID       string
	Sent         *bool
	Failed       *bool
}

// AttemptResult 一次投递尝试的结果
type AttemptResult struct {
	Sent     bool
	Attempts int // 本次尝试后的累计次数
	Failed   bool
	Error    *string
	At       time.Time
}

// ReminderRepository 提醒数据访问接口
type ReminderRepository interface {
	// CreateIfAbsent 依赖唯一索引去重：已存在同日同类提醒时返回 false
	CreateIfAbsent(ctx context.Context, reminder *model.Reminder) (bool, error)
	GetByID(ctx context.Context, id string) (*model.Reminder, error)
	List(ctx context.Context, filter ReminderFilter, page Page) ([]model.Reminder, int64, error)
	// ListDue 列出到期、未发送、未永久失败且未被有效认领的提醒
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.Reminder, error)
	// Claim 条件更新认领提醒，仅当 sent=false 且无有效认领时成功
	Claim(ctx context.Context, id, owner string, now, staleBefore time.Time) (bool, error)
	// RecordAttempt 写入投递结果并释放认领；认领已失效时返回 ErrNotClaimed
	RecordAttempt(ctx context.Context, id, owner string, result AttemptResult) error
	DeleteFutureUnsent(ctx context.Context, evaluationID string, after time.Time) (int64, error)
	Reschedule(ctx context.Context, id string, at time.Time, scheduledDate string, now time.Time) error
	PurgeSent(ctx context.Context, before time.Time) (int64, error)
}

type reminderRepo struct {
	db *gorm.DB
}

// NewReminderRepo 创建 ReminderRepository 实例
func NewReminderRepo(db *gorm.DB) ReminderRepository {
	return &reminderRepo{db: db}
}

func (r *reminderRepo) CreateIfAbsent(ctx context.Context, reminder *model.Reminder) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(reminder)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *reminderRepo) GetByID(ctx context.Context, id string) (*model.Reminder, error) {
	var reminder model.Reminder
	err := r.db.WithContext(ctx).
		Where("reminder_id = ?", id).
		First(&reminder).Error
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (r *reminderRepo) List(ctx context.Context, filter ReminderFilter, page Page) ([]model.Reminder, int64, error) {
	var reminders []model.Reminder
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Reminder{})
	if filter.EvaluationID != "" {
		db = db.Where("evaluation_id = ?", filter.EvaluationID)
	}
	if filter.UserID != "" {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.Sent != nil {
		db = db.Where("sent = ?", *filter.Sent)
	}
	if filter.Failed != nil {
		db = db.Where("failed = ?", *filter.Failed)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := page.apply(db).
		Order("scheduled_at DESC").
		Find(&reminders).Error
	return reminders, total, err
}

func (r *reminderRepo) ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]model.Reminder, error) {
	var reminders []model.Reminder
	db := r.db.WithContext(ctx).
		Where("sent = ? AND failed = ? AND scheduled_at <= ?", false, false, now).
		Where("claimed_at IS NULL OR claimed_at < ?", staleBefore).
		Order("scheduled_at ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	err := db.Find(&reminders).Error
	return reminders, err
}

func (r *reminderRepo) Claim(ctx context.Context, id, owner string, now, staleBefore time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("reminder_id = ? AND sent = ? AND failed = ?", id, false, false).
		Where("claimed_at IS NULL OR claimed_at < ?", staleBefore).
		Updates(map[string]interface{}{
			"claimed_by": owner,
			"claimed_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *reminderRepo) RecordAttempt(ctx context.Context, id, owner string, result AttemptResult) error {
	updates := map[string]interface{}{
		"attempts":        result.Attempts,
		"failed":          result.Failed,
		"last_error":      result.Error,
		"last_attempt_at": result.At,
		"claimed_by":      nil,
		"claimed_at":      nil,
		"updated_at":      result.At,
	}
	if result.Sent {
		updates["sent"] = true
		updates["sent_at"] = result.At
	}

	res := r.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("reminder_id = ? AND claimed_by = ? AND sent = ?", id, owner, false).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotClaimed
	}
	return nil
}

func (r *reminderRepo) DeleteFutureUnsent(ctx context.Context, evaluationID string, after time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("evaluation_id = ? AND sent = ? AND claimed_by IS NULL AND scheduled_at > ?", evaluationID, false, after).
		Delete(&model.Reminder{})
	return result.RowsAffected, result.Error
}

// Reschedule 仅允许未发送的提醒改期，同时重置尝试计数与永久失败标记
func (r *reminderRepo) Reschedule(ctx context.Context, id string, at time.Time, scheduledDate string, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("reminder_id = ? AND sent = ? AND claimed_by IS NULL", id, false).
		Updates(map[string]interface{}{
			"scheduled_at":   at,
			"scheduled_date": scheduledDate,
			"attempts":       0,
			"failed":         false,
			"last_error":     nil,
			"updated_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrNotClaimed
	}
	return nil
}

func (r *reminderRepo) PurgeSent(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("sent = ? AND sent_at < ?", true, before).
		Delete(&model.Reminder{})
	return result.RowsAffected, result.Error
}
