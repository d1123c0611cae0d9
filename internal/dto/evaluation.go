package dto

// ── 评估 DTO ──

// CreateEvaluationRequest 提交评估请求（评估人为当前用户）
type CreateEvaluationRequest struct {
	EvaluatedID string  `json:"evaluated_id" binding:"required"`
	PeriodID    string  `json:"period_id"    binding:"required"`
	Score       int     `json:"score"        binding:"required"`
	Comment     *string `json:"comment"`
}

// AssignEvaluationRequest 指派待完成评估请求（管理角色）
type AssignEvaluationRequest struct {
	EvaluatorID string  `json:"evaluator_id" binding:"required"`
	EvaluatedID string  `json:"evaluated_id" binding:"required"`
	PeriodID    string  `json:"period_id"    binding:"required"`
	DueDate     *string `json:"due_date"` // 为空时以周期结束时间为截止
}

// UpdateEvaluationRequest 更新评估请求
type UpdateEvaluationRequest struct {
	Score   *int    `json:"score"`
	Comment *string `json:"comment"`
	DueDate *string `json:"due_date"` // 仅管理角色可修改，修改后重新生成提醒
}

// CancelEvaluationRequest 取消评估请求
type CancelEvaluationRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// EvaluationListRequest 评估列表查询参数
type EvaluationListRequest struct {
	PaginationRequest
	PeriodID    string `form:"period_id"`
	EvaluatorID string `form:"evaluator_id"`
	EvaluatedID string `form:"evaluated_id"`
	Status      string `form:"status" binding:"omitempty,oneof=PENDING COMPLETED CANCELED"`
}

// EvaluationResponse 评估响应
type EvaluationResponse struct {
	ID             string  `json:"id"`
	EvaluatorID    string  `json:"evaluator_id"`
	EvaluatedID    string  `json:"evaluated_id"`
	PeriodID       string  `json:"period_id"`
	Score          *int    `json:"score,omitempty"`
	Comment        *string `json:"comment,omitempty"`
	Status         string  `json:"status"`
	EvaluationDate string  `json:"evaluation_date,omitempty"`
	DueDate        string  `json:"due_date,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}
