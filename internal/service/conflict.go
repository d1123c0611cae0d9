package service

import (
	"time"

	"koerner360/backend/internal/model"
)

// Overlaps 闭区间重叠判断：a.start ≤ b.end 且 a.end ≥ b.start
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

// FindConflicts 返回与候选窗口重叠的全部非终态周期（排除 excludeID 自身）
// FINISHED / CANCELED 周期永不参与冲突检测
func FindConflicts(periods []model.Period, start, end time.Time, excludeID string) []model.Period {
	var conflicts []model.Period
	for _, p := range periods {
		if p.PeriodID == excludeID || p.IsTerminal() {
			continue
		}
		if Overlaps(start, end, p.StartsAt, p.EndsAt) {
			conflicts = append(conflicts, p)
		}
	}
	return conflicts
}
