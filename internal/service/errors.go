package service

import (
	"errors"
	"fmt"
	"strings"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/model"
)

// ── 错误分类 ──
//
// 各模块的业务错误都归属下列分类之一，handler 通过 errors.Is 映射 HTTP 状态码。

var (
	ErrValidation        = errors.New("参数校验失败")
	ErrConflict          = errors.New("数据冲突")
	ErrNotFound          = errors.New("资源不存在")
	ErrPermission        = errors.New("权限不足")
	ErrTransientDelivery = errors.New("邮件投递失败")
	ErrFatalConfig       = errors.New("调度配置无效")
)

// bizError 带分类的业务错误：Error() 返回面向用户的消息，Unwrap 返回分类
type bizError struct {
	msg  string
	kind error
}

func (e *bizError) Error() string { return e.msg }
func (e *bizError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &bizError{msg: msg, kind: kind}
}

// ValidationError 输入校验失败，携带字段名
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError 唯一性/窗口/重叠冲突，Periods 为完整的冲突周期集合
type ConflictError struct {
	Reason  string
	Periods []model.Period
}

func (e *ConflictError) Error() string {
	if len(e.Periods) == 0 {
		return e.Reason
	}
	names := make([]string, 0, len(e.Periods))
	for _, p := range e.Periods {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(names, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// FatalConfigError 调度配置非法，更新时直接拒绝
type FatalConfigError struct {
	Field  string
	Reason string
}

func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("调度配置无效 %s: %s", e.Field, e.Reason)
}

func (e *FatalConfigError) Unwrap() error { return ErrFatalConfig }

// Conflicts 冲突周期的响应摘要
func (e *ConflictError) Conflicts() []dto.PeriodConflict {
	return toPeriodConflicts(e.Periods)
}
