package dto

// ── 评估周期 DTO ──

// CreatePeriodRequest 创建评估周期请求
// 时间支持 RFC3339 或纯日期（"2024-01-31"，结束日期按当天结束处理）
type CreatePeriodRequest struct {
	Name        string `json:"name"        binding:"required,min=2,max=100"`
	Description string `json:"description" binding:"omitempty,max=2000"`
	StartsAt    string `json:"starts_at"   binding:"required"`
	EndsAt      string `json:"ends_at"     binding:"required"`
}

// UpdatePeriodRequest 更新评估周期请求（状态变更会按迁移规则重新校验）
type UpdatePeriodRequest struct {
	Name        *string `json:"name"        binding:"omitempty,min=2,max=100"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	StartsAt    *string `json:"starts_at"`
	EndsAt      *string `json:"ends_at"`
	Status      *string `json:"status"      binding:"omitempty,oneof=PLANNED ACTIVE FINISHED CANCELED"`
	Reason      string  `json:"reason"      binding:"omitempty,max=500"`
	Version     *int    `json:"version"`
}

// CancelPeriodRequest 取消评估周期请求
type CancelPeriodRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// PeriodListRequest 周期列表查询参数
type PeriodListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=PLANNED ACTIVE FINISHED CANCELED"`
}

// PeriodConflictQuery 窗口冲突探测参数
type PeriodConflictQuery struct {
	StartsAt  string `form:"starts_at"  binding:"required"`
	EndsAt    string `form:"ends_at"    binding:"required"`
	ExcludeID string `form:"exclude_id"`
}

// PeriodResponse 评估周期响应
type PeriodResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartsAt    string `json:"starts_at"`
	EndsAt      string `json:"ends_at"`
	Status      string `json:"status"`
	Version     int    `json:"version"`
	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// PeriodConflict 冲突周期摘要
type PeriodConflict struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
	Status   string `json:"status"`
}

// PeriodAnomaly 对账时被推迟激活、需人工处理的周期
type PeriodAnomaly struct {
	Period        PeriodConflict   `json:"period"`
	ConflictsWith []PeriodConflict `json:"conflicts_with"`
	Reason        string           `json:"reason"`
}

// ReconcileResponse 对账结果
type ReconcileResponse struct {
	Changed   int             `json:"changed"`
	Anomalies []PeriodAnomaly `json:"anomalies"`
}
