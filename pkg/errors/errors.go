package errors

import "errors"

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrNotClaimed 条件更新未命中：提醒已被其他调度实例认领或已发送
var ErrNotClaimed = errors.New("提醒已被其他实例认领或已发送")

// ErrPeriodOverlap 数据库排他约束拒绝：非终态周期窗口重叠
var ErrPeriodOverlap = errors.New("评估周期时间窗口与其他周期重叠")
