package model

import (
	"time"

	"gorm.io/gorm"
)

// 评估状态
const (
	EvaluationPending   = "PENDING"
	EvaluationCompleted = "COMPLETED"
	EvaluationCanceled  = "CANCELED"
)

// 评分与评语约束
const (
	ScoreMin         = 1
	ScoreMax         = 5
	CommentMaxLength = 1000
)

// Evaluation 评估表 — 对应 evaluations
// (evaluator_id, evaluated_id, period_id) 唯一，由数据库唯一索引最终保证
type Evaluation struct {
	EvaluationID   string     `gorm:"type:uuid;primaryKey"                                       json:"evaluation_id"`
	EvaluatorID    string     `gorm:"type:uuid;not null;uniqueIndex:uq_evaluations_triple,priority:1" json:"evaluator_id"`
	EvaluatedID    string     `gorm:"type:uuid;not null;uniqueIndex:uq_evaluations_triple,priority:2" json:"evaluated_id"`
	PeriodID       string     `gorm:"type:uuid;not null;uniqueIndex:uq_evaluations_triple,priority:3;index" json:"period_id"`
	Score          *int       `gorm:"type:smallint"                                              json:"score,omitempty"`
	Comment        *string    `gorm:"type:varchar(1000)"                                         json:"comment,omitempty"`
	Status         string     `gorm:"type:varchar(20);not null;default:'PENDING';index"          json:"status"` // PENDING | COMPLETED | CANCELED
	EvaluationDate *time.Time `json:"evaluation_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"` // 为空时以周期结束时间为截止
	BaseModel

	// 关联
	Period *Period `gorm:"foreignKey:PeriodID;references:PeriodID" json:"period,omitempty"`
}

// TableName 指定表名
func (Evaluation) TableName() string { return "evaluations" }

// BeforeCreate 生成主键
func (e *Evaluation) BeforeCreate(_ *gorm.DB) error {
	newID(&e.EvaluationID)
	return nil
}

// Deadline 计算截止时间：显式截止日期优先，否则取周期结束时间
func (e *Evaluation) Deadline(period *Period) (time.Time, bool) {
	if e.DueDate != nil {
		return *e.DueDate, true
	}
	if period != nil {
		return period.EndsAt, true
	}
	if e.Period != nil {
		return e.Period.EndsAt, true
	}
	return time.Time{}, false
}
