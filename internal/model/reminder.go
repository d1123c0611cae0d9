package model

import (
	"time"

	"gorm.io/gorm"
)

// 提醒类型
const (
	ReminderTypeReminder = "reminder" // 截止前 N 天
	ReminderTypeDue      = "due"      // 截止当天
)

// ScheduledDateLayout scheduled_date 列的日历日格式
const ScheduledDateLayout = "2006-01-02"

// Reminder 提醒投递任务表 — 对应 reminders
// (evaluation_id, user_id, type, scheduled_date) 唯一：同一评估同一用户每天至多一条同类提醒
type Reminder struct {
	ReminderID    string     `gorm:"type:uuid;primaryKey"                                                  json:"reminder_id"`
	EvaluationID  string     `gorm:"type:uuid;not null;uniqueIndex:uq_reminders_daily,priority:1"          json:"evaluation_id"`
	UserID        string     `gorm:"type:uuid;not null;uniqueIndex:uq_reminders_daily,priority:2"          json:"user_id"`
	Type          string     `gorm:"type:varchar(20);not null;uniqueIndex:uq_reminders_daily,priority:3"   json:"type"` // reminder | due
	ScheduledDate string     `gorm:"type:varchar(10);not null;uniqueIndex:uq_reminders_daily,priority:4"   json:"scheduled_date"`
	ScheduledAt   time.Time  `gorm:"not null;index"                                                        json:"scheduled_at"`
	Sent          bool       `gorm:"not null;default:false;index"                                          json:"sent"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	Attempts      int        `gorm:"not null;default:0"                                                    json:"attempts"`
	Failed        bool       `gorm:"not null;default:false"                                                json:"failed"` // 达到最大尝试次数，退出自动重试
	LastError     *string    `gorm:"type:text"                                                             json:"last_error,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	ClaimedBy     *string    `gorm:"type:varchar(40)"                                                      json:"claimed_by,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null"                                                              json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null"                                                              json:"updated_at"`
}

// TableName 指定表名
func (Reminder) TableName() string { return "reminders" }

// BeforeCreate 生成主键
func (r *Reminder) BeforeCreate(_ *gorm.DB) error {
	newID(&r.ReminderID)
	return nil
}

// ReminderConfig 提醒调度配置表 — 对应 reminder_config（单行强类型）
type ReminderConfig struct {
	Singleton       bool     `gorm:"primaryKey;default:true"                   json:"-"`
	DaysBefore      IntArray `gorm:"not null"                                 json:"dias_antecedencia"`
	SendTime        string   `gorm:"type:varchar(5);not null;default:'09:00'"  json:"horario_envio"`
	Enabled         bool     `gorm:"not null"                                  json:"ativo"`
	IncludeWeekends bool     `gorm:"not null;default:false"                    json:"incluir_fim_de_semana"`
	IncludeHolidays bool     `gorm:"not null;default:false"                    json:"incluir_feriados"`
	BaseModel
}

// TableName 指定表名
func (ReminderConfig) TableName() string { return "reminder_config" }

// Holiday 节假日表 — 对应 holidays
type Holiday struct {
	HolidayID string    `gorm:"type:uuid;primaryKey"                 json:"holiday_id"`
	Date      string    `gorm:"type:varchar(10);not null;uniqueIndex" json:"date"` // 2006-01-02
	Name      string    `gorm:"type:varchar(200);not null"           json:"name"`
	Source    string    `gorm:"type:varchar(20);not null;default:'manual'" json:"source"` // manual | ics
	CreatedAt time.Time `gorm:"not null"                             json:"created_at"`
}

// TableName 指定表名
func (Holiday) TableName() string { return "holidays" }

// BeforeCreate 生成主键
func (h *Holiday) BeforeCreate(_ *gorm.DB) error {
	newID(&h.HolidayID)
	return nil
}
