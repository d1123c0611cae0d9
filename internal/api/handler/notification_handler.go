package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

// NotificationHandler 通知模块 HTTP 处理器（均作用于当前用户）
type NotificationHandler struct {
	notificationSvc service.NotificationService
}

// NewNotificationHandler 创建 NotificationHandler
func NewNotificationHandler(notificationSvc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc}
}

// ListNotifications 当前用户的通知列表
// GET /api/v1/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var req dto.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, total, err := h.notificationSvc.List(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// UnreadCount 未读通知数量
// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	count, err := h.notificationSvc.UnreadCount(c.Request.Context(), caller)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, count)
}

// MarkRead 标记单条通知已读
// PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "通知ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.notificationSvc.MarkRead(c.Request.Context(), id, caller); err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, nil)
}

// MarkAllRead 批量标记已读，可按类型与紧急程度过滤
// PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	var req dto.MarkAllReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 10001, "参数校验失败")
			return
		}
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	n, err := h.notificationSvc.MarkAllRead(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, dto.AffectedResponse{Affected: n})
}

// Cleanup 清理旧的已读通知（未读通知不受影响）
// DELETE /api/v1/notifications/cleanup?days=
func (h *NotificationHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	n, err := h.notificationSvc.Cleanup(c.Request.Context(), req.Days, caller)
	if err != nil {
		h.handleNotificationError(c, err)
		return
	}

	response.OK(c, dto.AffectedResponse{Affected: n})
}

// handleNotificationError 统一处理通知模块业务错误
func (h *NotificationHandler) handleNotificationError(c *gin.Context, err error) {
	code := 24000
	if errors.Is(err, service.ErrNotificationNotFound) {
		code = 24001
	}
	writeBizError(c, err, code)
}
