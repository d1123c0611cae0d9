package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

// ReminderHandler 提醒运维视图 HTTP 处理器
type ReminderHandler struct {
	reminderSvc service.ReminderService
}

// NewReminderHandler 创建 ReminderHandler
func NewReminderHandler(reminderSvc service.ReminderService) *ReminderHandler {
	return &ReminderHandler{reminderSvc: reminderSvc}
}

// ListReminders 提醒列表（可按 sent/failed/evaluation_id 过滤）
// GET /api/v1/reminders
func (h *ReminderHandler) ListReminders(c *gin.Context) {
	var req dto.ReminderListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, total, err := h.reminderSvc.List(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleReminderError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// ResendReminder 立即重新投递提醒
// POST /api/v1/reminders/:id/resend
func (h *ReminderHandler) ResendReminder(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "提醒ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	reminder, err := h.reminderSvc.Resend(c.Request.Context(), id, caller)
	if err != nil {
		h.handleReminderError(c, err)
		return
	}

	response.OK(c, reminder)
}

// RescheduleReminder 提醒改期
// PUT /api/v1/reminders/:id/reschedule
func (h *ReminderHandler) RescheduleReminder(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "提醒ID不能为空")
		return
	}

	var req dto.RescheduleReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	reminder, err := h.reminderSvc.Reschedule(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleReminderError(c, err)
		return
	}

	response.OK(c, reminder)
}

// RescheduleEvaluation 按当前配置重建评估的未来提醒
// POST /api/v1/reminders/evaluations/:id/reschedule
func (h *ReminderHandler) RescheduleEvaluation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "评估ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.reminderSvc.RescheduleEvaluation(c.Request.Context(), id, caller)
	if err != nil {
		h.handleReminderError(c, err)
		return
	}

	response.OK(c, result)
}

// PurgeReminders 清理早于 days 天前发送的提醒
// DELETE /api/v1/reminders/purge?days=
func (h *ReminderHandler) PurgeReminders(c *gin.Context) {
	var req dto.PurgeRemindersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	n, err := h.reminderSvc.PurgeSent(c.Request.Context(), req.Days, caller)
	if err != nil {
		h.handleReminderError(c, err)
		return
	}

	response.OK(c, dto.AffectedResponse{Affected: n})
}

// handleReminderError 统一处理提醒模块业务错误
func (h *ReminderHandler) handleReminderError(c *gin.Context, err error) {
	code := 22000
	switch {
	case errors.Is(err, service.ErrReminderNotFound):
		code = 22001
	case errors.Is(err, service.ErrReminderAlreadySent):
		code = 22002
	case errors.Is(err, service.ErrReminderFailed):
		code = 22003
	case errors.Is(err, service.ErrReminderBusy):
		code = 22004
	case errors.Is(err, service.ErrReminderDuplicate):
		code = 22005
	case errors.Is(err, service.ErrReminderPastTime):
		code = 22006
	case errors.Is(err, service.ErrEvaluationNotFound):
		code = 21001
	}
	writeBizError(c, err, code)
}
