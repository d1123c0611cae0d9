package model

import (
	"time"

	"gorm.io/gorm"
)

// 通知类型
const (
	NotificationTypePending = "evaluation_pending"
	NotificationTypeOverdue = "evaluation_overdue"
)

// 通知紧急程度
const (
	UrgencyLow     = "low"
	UrgencyMedium  = "medium"
	UrgencyHigh    = "high"
	UrgencyOverdue = "overdue"
)

// 通知状态
const (
	NotificationUnread = "unread"
	NotificationRead   = "read"
)

// Notification 通知消息表 — 对应 notifications
// 未读状态下 (user_id, evaluation_id, type) 唯一（部分唯一索引），已读记录不受限
type Notification struct {
	NotificationID string     `gorm:"type:uuid;primaryKey"                                                                    json:"notification_id"`
	UserID         string     `gorm:"type:uuid;not null;index;uniqueIndex:uq_notifications_unread,priority:1,where:status = 'unread'" json:"user_id"`
	EvaluationID   string     `gorm:"type:uuid;not null;uniqueIndex:uq_notifications_unread,priority:2,where:status = 'unread'"       json:"evaluation_id"`
	Type           string     `gorm:"type:varchar(50);not null;uniqueIndex:uq_notifications_unread,priority:3,where:status = 'unread'" json:"type"`
	Urgency        string     `gorm:"type:varchar(10);not null"                                                               json:"urgency"` // low | medium | high | overdue
	Status         string     `gorm:"type:varchar(10);not null;default:'unread';index"                                        json:"status"`  // unread | read
	Title          string     `gorm:"type:varchar(200);not null"                                                              json:"title"`
	Message        string     `gorm:"type:text;not null"                                                                      json:"message"`
	Link           string     `gorm:"type:varchar(500);not null;default:''"                                                   json:"link"`
	CreatedAt      time.Time  `gorm:"not null;index"                                                                          json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }

// BeforeCreate 生成主键
func (n *Notification) BeforeCreate(_ *gorm.DB) error {
	newID(&n.NotificationID)
	return nil
}
