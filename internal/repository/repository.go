package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User           UserRepository
	Period         PeriodRepository
	Evaluation     EvaluationRepository
	Reminder       ReminderRepository
	Notification   NotificationRepository
	ReminderConfig ReminderConfigRepository
	Holiday        HolidayRepository
	AuditLog       AuditLogRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:             db,
		User:           NewUserRepo(db),
		Period:         NewPeriodRepo(db),
		Evaluation:     NewEvaluationRepo(db),
		Reminder:       NewReminderRepo(db),
		Notification:   NewNotificationRepo(db),
		ReminderConfig: NewReminderConfigRepo(db),
		Holiday:        NewHolidayRepo(db),
		AuditLog:       NewAuditLogRepo(db),
	}
}

// Transaction 在同一事务中执行 fn，fn 返回错误或 panic 时整体回滚
// 单元测试中以 mock 组装的 Repository 没有 db，此时直接以自身执行 fn
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

// DB 返回底层连接（健康检查等场景）
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Page 通用分页参数
type Page struct {
	Offset int
	Limit  int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Offset > 0 {
		db = db.Offset(p.Offset)
	}
	if p.Limit > 0 {
		db = db.Limit(p.Limit)
	}
	return db
}
