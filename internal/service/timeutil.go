package service

import (
	"context"
	"strings"
	"time"

	"koerner360/backend/internal/model"
	"koerner360/backend/internal/repository"
)

const dateLayout = "2006-01-02"

// parseInstant 解析 RFC3339 时间或纯日期；纯日期按 loc 解释，endOfDay 为真时取当天最后一刻
func parseInstant(field, value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, invalid(field, "时间格式无效，应为 RFC3339 或 YYYY-MM-DD")
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// writeAudit 写入一条审计日志
func writeAudit(ctx context.Context, repo *repository.Repository, change model.AuditChange, operator *string, at time.Time) error {
	return repo.AuditLog.Create(ctx, change.ToAuditLog(operator, at))
}
