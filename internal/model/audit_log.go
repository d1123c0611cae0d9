package model

import (
	"time"

	"gorm.io/gorm"
)

// 审计变更类型
const (
	ChangePeriodStatus        = "period_status"
	ChangePeriodWindow        = "period_window"
	ChangeEvaluationCanceled  = "evaluation_canceled"
	ChangeReminderRescheduled = "reminder_rescheduled"
	ChangeConfigUpdated       = "config_updated"
)

// AuditLog 审计日志表 — 对应 audit_logs（纯审计日志，按变更类型使用强类型列）
type AuditLog struct {
	AuditLogID string     `gorm:"type:uuid;primaryKey"             json:"audit_log_id"`
	ChangeType string     `gorm:"type:varchar(30);not null;index"  json:"change_type"`
	EntityType string     `gorm:"type:varchar(20);not null"        json:"entity_type"` // period | evaluation | reminder | config
	EntityID   string     `gorm:"type:varchar(40);not null;index"  json:"entity_id"`
	FromStatus *string    `gorm:"type:varchar(20)"                 json:"from_status,omitempty"`
	ToStatus   *string    `gorm:"type:varchar(20)"                 json:"to_status,omitempty"`
	FromStart  *time.Time `json:"from_start,omitempty"`
	FromEnd    *time.Time `json:"from_end,omitempty"`
	ToStart    *time.Time `json:"to_start,omitempty"`
	ToEnd      *time.Time `json:"to_end,omitempty"`
	// 提醒配置变更前后的值
	FromDaysBefore      IntArray `json:"from_dias_antecedencia,omitempty"`
	ToDaysBefore        IntArray `json:"to_dias_antecedencia,omitempty"`
	FromSendTime        *string  `gorm:"type:varchar(5)" json:"from_horario_envio,omitempty"`
	ToSendTime          *string  `gorm:"type:varchar(5)" json:"to_horario_envio,omitempty"`
	FromEnabled         *bool    `json:"from_ativo,omitempty"`
	ToEnabled           *bool    `json:"to_ativo,omitempty"`
	FromIncludeWeekends *bool    `json:"from_incluir_fim_de_semana,omitempty"`
	ToIncludeWeekends   *bool    `json:"to_incluir_fim_de_semana,omitempty"`
	FromIncludeHolidays *bool    `json:"from_incluir_feriados,omitempty"`
	ToIncludeHolidays   *bool    `json:"to_incluir_feriados,omitempty"`

	Reason     string     `gorm:"type:varchar(500);not null;default:''" json:"reason,omitempty"`
	OperatorID *string    `gorm:"type:varchar(40)"                 json:"operator_id,omitempty"` // 为空表示系统自动（对账）
	CreatedAt  time.Time  `gorm:"not null"                         json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string { return "audit_logs" }

// BeforeCreate 生成主键
func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	newID(&a.AuditLogID)
	return nil
}

// AuditChange 审计变更的强类型变体，每种变更自行填充对应列
type AuditChange interface {
	ToAuditLog(operatorID *string, at time.Time) *AuditLog
}

// PeriodStatusChange 周期状态迁移
type PeriodStatusChange struct {
	PeriodID string
	From     string
	To       string
	Reason   string
}

// ToAuditLog 实现 AuditChange
func (c PeriodStatusChange) ToAuditLog(operatorID *string, at time.Time) *AuditLog {
	from, to := c.From, c.To
	return &AuditLog{
		ChangeType: ChangePeriodStatus,
		EntityType: "period",
		EntityID:   c.PeriodID,
		FromStatus: &from,
		ToStatus:   &to,
		Reason:     c.Reason,
		OperatorID: operatorID,
		CreatedAt:  at,
	}
}

// PeriodWindowChange 周期时间窗口修改
type PeriodWindowChange struct {
	PeriodID  string
	FromStart time.Time
	FromEnd   time.Time
	ToStart   time.Time
	ToEnd     time.Time
}

// ToAuditLog 实现 AuditChange
func (c PeriodWindowChange) ToAuditLog(operatorID *string, at time.Time) *AuditLog {
	fs, fe, ts, te := c.FromStart, c.FromEnd, c.ToStart, c.ToEnd
	return &AuditLog{
		ChangeType: ChangePeriodWindow,
		EntityType: "period",
		EntityID:   c.PeriodID,
		FromStart:  &fs,
		FromEnd:    &fe,
		ToStart:    &ts,
		ToEnd:      &te,
		OperatorID: operatorID,
		CreatedAt:  at,
	}
}

// EvaluationCancellation 评估被取消
type EvaluationCancellation struct {
	EvaluationID string
	From         string
	Reason       string
}

// ToAuditLog 实现 AuditChange
func (c EvaluationCancellation) ToAuditLog(operatorID *string, at time.Time) *AuditLog {
	from, to := c.From, EvaluationCanceled
	return &AuditLog{
		ChangeType: ChangeEvaluationCanceled,
		EntityType: "evaluation",
		EntityID:   c.EvaluationID,
		FromStatus: &from,
		ToStatus:   &to,
		Reason:     c.Reason,
		OperatorID: operatorID,
		CreatedAt:  at,
	}
}

// ReminderRescheduled 失败提醒被手动改期
type ReminderRescheduled struct {
	ReminderID string
	From       time.Time
	To         time.Time
}

// ToAuditLog 实现 AuditChange
func (c ReminderRescheduled) ToAuditLog(operatorID *string, at time.Time) *AuditLog {
	from, to := c.From, c.To
	return &AuditLog{
		ChangeType: ChangeReminderRescheduled,
		EntityType: "reminder",
		EntityID:   c.ReminderID,
		FromStart:  &from,
		ToStart:    &to,
		OperatorID: operatorID,
		CreatedAt:  at,
	}
}

// ConfigUpdated 提醒配置更新，记录变更前后的完整配置
type ConfigUpdated struct {
	Before ReminderConfig
	After  ReminderConfig
}

// ToAuditLog 实现 AuditChange
func (c ConfigUpdated) ToAuditLog(operatorID *string, at time.Time) *AuditLog {
	b, a := c.Before, c.After
	return &AuditLog{
		ChangeType:          ChangeConfigUpdated,
		EntityType:          "config",
		EntityID:            "reminder_config",
		FromDaysBefore:      append(IntArray{}, b.DaysBefore...),
		ToDaysBefore:        append(IntArray{}, a.DaysBefore...),
		FromSendTime:        &b.SendTime,
		ToSendTime:          &a.SendTime,
		FromEnabled:         &b.Enabled,
		ToEnabled:           &a.Enabled,
		FromIncludeWeekends: &b.IncludeWeekends,
		ToIncludeWeekends:   &a.IncludeWeekends,
		FromIncludeHolidays: &b.IncludeHolidays,
		ToIncludeHolidays:   &a.IncludeHolidays,
		OperatorID:          operatorID,
		CreatedAt:           at,
	}
}
