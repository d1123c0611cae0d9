package dto

// ── 通知 DTO ──

// NotificationListRequest 通知列表查询参数
type NotificationListRequest struct {
	PaginationRequest
	Type    string `form:"type"    binding:"omitempty,oneof=evaluation_pending evaluation_overdue"`
	Urgency string `form:"urgency" binding:"omitempty,oneof=low medium high overdue"`
	Status  string `form:"status"  binding:"omitempty,oneof=unread read"`
}

// MarkAllReadRequest 批量已读请求（可按类型/紧急程度过滤）
type MarkAllReadRequest struct {
	Type    string `json:"type"    binding:"omitempty,oneof=evaluation_pending evaluation_overdue"`
	Urgency string `json:"urgency" binding:"omitempty,oneof=low medium high overdue"`
}

// CleanupNotificationsRequest 清理已读通知参数
type CleanupNotificationsRequest struct {
	Days int `form:"days" binding:"omitempty,min=1,max=3650"`
}

// NotificationResponse 通知响应
type NotificationResponse struct {
	ID           string `json:"id"`
	EvaluationID string `json:"evaluation_id"`
	Type         string `json:"type"`
	Urgency      string `json:"urgency"`
	Status       string `json:"status"`
	Title        string `json:"title"`
	Message      string `json:"message"`
	Link         string `json:"link"`
	CreatedAt    string `json:"created_at"`
	ReadAt       string `json:"read_at,omitempty"`
}

// UnreadCountResponse 未读数量
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}
