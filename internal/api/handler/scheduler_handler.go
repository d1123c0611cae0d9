package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

// SchedulerHandler 提醒调度器与提醒配置 HTTP 处理器
type SchedulerHandler struct {
	schedulerSvc service.SchedulerService
	configSvc    service.ReminderConfigService
}

// NewSchedulerHandler 创建 SchedulerHandler
func NewSchedulerHandler(schedulerSvc service.SchedulerService, configSvc service.ReminderConfigService) *SchedulerHandler {
	return &SchedulerHandler{schedulerSvc: schedulerSvc, configSvc: configSvc}
}

// GetStatus 调度器运行状态与最近一次扫描结果
// GET /api/v1/scheduler/status
func (h *SchedulerHandler) GetStatus(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	status, err := h.schedulerSvc.Status(c.Request.Context(), caller)
	if err != nil {
		h.handleSchedulerError(c, err)
		return
	}

	response.OK(c, status)
}

// Start 启动周期扫描
// POST /api/v1/scheduler/start
func (h *SchedulerHandler) Start(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.schedulerSvc.Start(caller); err != nil {
		h.handleSchedulerError(c, err)
		return
	}

	response.OK(c, nil)
}

// Stop 停止周期扫描（进行中的投递不受影响）
// POST /api/v1/scheduler/stop
func (h *SchedulerHandler) Stop(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.schedulerSvc.Stop(caller); err != nil {
		h.handleSchedulerError(c, err)
		return
	}

	response.OK(c, nil)
}

// Sweep 立即执行一次扫描；单步失败记录在报告 errors 中
// POST /api/v1/scheduler/sweep
func (h *SchedulerHandler) Sweep(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	report, err := h.schedulerSvc.Sweep(c.Request.Context(), caller)
	if err != nil {
		h.handleSchedulerError(c, err)
		return
	}

	response.OK(c, report)
}

// GetConfig 获取提醒配置
// GET /api/v1/scheduler/config
func (h *SchedulerHandler) GetConfig(c *gin.Context) {
	cfg, err := h.configSvc.Get(c.Request.Context())
	if err != nil {
		h.handleSchedulerError(c, err)
		return
	}

	response.OK(c, cfg)
}

// UpdateConfig 更新提醒配置（非法配置整体拒绝）
// PUT /api/v1/scheduler/config
func (h *SchedulerHandler) UpdateConfig(c *gin.Context) {
	var req dto.UpdateReminderConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	cfg, err := h.configSvc.Update(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleSchedulerError(c, err)
		return
	}

	response.OK(c, cfg)
}

// handleSchedulerError 统一处理调度模块业务错误
func (h *SchedulerHandler) handleSchedulerError(c *gin.Context, err error) {
	code := 23000
	switch {
	case errors.Is(err, service.ErrSchedulerRunning):
		code = 23001
	case errors.Is(err, service.ErrSchedulerStopped):
		code = 23002
	case errors.Is(err, service.ErrFatalConfig):
		code = 23003
	}
	writeBizError(c, err, code)
}
