package model

import (
	"time"

	"gorm.io/gorm"
)

// 评估周期状态
const (
	PeriodPlanned  = "PLANNED"
	PeriodActive   = "ACTIVE"
	PeriodFinished = "FINISHED"
	PeriodCanceled = "CANCELED"
)

// Period 评估周期表 — 对应 periods
type Period struct {
	PeriodID    string    `gorm:"type:uuid;primaryKey"                          json:"period_id"`
	Name        string    `gorm:"type:varchar(100);not null"                    json:"name"`
	Description string    `gorm:"type:text;not null;default:''"                 json:"description"`
	StartsAt    time.Time `gorm:"not null;index"                                json:"starts_at"`
	EndsAt      time.Time `gorm:"not null;index"                                json:"ends_at"`
	Status      string    `gorm:"type:varchar(20);not null;default:'PLANNED';index" json:"status"` // PLANNED | ACTIVE | FINISHED | CANCELED
	VersionedModel
}

// TableName 指定表名
func (Period) TableName() string { return "periods" }

// BeforeCreate 生成主键
func (p *Period) BeforeCreate(_ *gorm.DB) error {
	newID(&p.PeriodID)
	return nil
}

// IsTerminal FINISHED / CANCELED 为终态，不参与冲突检测
func (p *Period) IsTerminal() bool {
	return IsTerminalPeriodStatus(p.Status)
}

// Contains 判断 t 是否落在闭区间 [StartsAt, EndsAt] 内
func (p *Period) Contains(t time.Time) bool {
	return !t.Before(p.StartsAt) && !t.After(p.EndsAt)
}

// IsTerminalPeriodStatus 判断状态是否为终态
func IsTerminalPeriodStatus(status string) bool {
	return status == PeriodFinished || status == PeriodCanceled
}

// NonTerminalPeriodStatuses 参与冲突检测的状态集合
var NonTerminalPeriodStatuses = []string{PeriodPlanned, PeriodActive}
