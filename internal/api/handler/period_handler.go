package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

// PeriodHandler 评估周期模块 HTTP 处理器
type PeriodHandler struct {
	periodSvc service.PeriodService
}

// NewPeriodHandler 创建 PeriodHandler
func NewPeriodHandler(periodSvc service.PeriodService) *PeriodHandler {
	return &PeriodHandler{periodSvc: periodSvc}
}

// ListPeriods 获取周期列表
// GET /api/v1/periods
func (h *PeriodHandler) ListPeriods(c *gin.Context) {
	var req dto.PeriodListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	periods, err := h.periodSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, gin.H{"list": periods})
}

// GetPeriod 获取周期详情
// GET /api/v1/periods/:id
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "周期ID不能为空")
		return
	}

	period, err := h.periodSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// GetCurrentPeriod 获取进行中的周期
// GET /api/v1/periods/current
func (h *PeriodHandler) GetCurrentPeriod(c *gin.Context) {
	period, err := h.periodSvc.GetCurrent(c.Request.Context())
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// CreatePeriod 创建周期
// POST /api/v1/periods
func (h *PeriodHandler) CreatePeriod(c *gin.Context) {
	var req dto.CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	period, err := h.periodSvc.Create(c.Request.Context(), &req, caller)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.Created(c, period)
}

// UpdatePeriod 更新周期（窗口、名称或状态）
// PUT /api/v1/periods/:id
func (h *PeriodHandler) UpdatePeriod(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "周期ID不能为空")
		return
	}

	var req dto.UpdatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	period, err := h.periodSvc.Update(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// CancelPeriod 取消周期，级联取消待完成评估
// PUT /api/v1/periods/:id/cancel
func (h *PeriodHandler) CancelPeriod(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "周期ID不能为空")
		return
	}

	var req dto.CancelPeriodRequest
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

	period, err := h.periodSvc.Cancel(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// DeletePeriod 删除周期（仅限没有评估记录的周期）
// DELETE /api/v1/periods/:id
func (h *PeriodHandler) DeletePeriod(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "周期ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.periodSvc.Delete(c.Request.Context(), id, caller); err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, nil)
}

// Reconcile 立即按当前时间推进周期状态
// POST /api/v1/periods/reconcile
func (h *PeriodHandler) Reconcile(c *gin.Context) {
	result, err := h.periodSvc.Reconcile(c.Request.Context())
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, result)
}

// ListAnomalies 列出因冲突被推迟激活的周期
// GET /api/v1/periods/anomalies
func (h *PeriodHandler) ListAnomalies(c *gin.Context) {
	anomalies, err := h.periodSvc.Anomalies(c.Request.Context())
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, gin.H{"list": anomalies})
}

// CheckConflicts 探测窗口与现有周期的冲突
// GET /api/v1/periods/conflicts?starts_at=&ends_at=&exclude_id=
func (h *PeriodHandler) CheckConflicts(c *gin.Context) {
	var query dto.PeriodConflictQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	conflicts, err := h.periodSvc.Conflicts(c.Request.Context(), &query)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, gin.H{"list": conflicts})
}

// handlePeriodError 统一处理周期模块业务错误
func (h *PeriodHandler) handlePeriodError(c *gin.Context, err error) {
	var conflict *service.ConflictError
	code := 20000
	switch {
	case errors.Is(err, service.ErrPeriodNotFound):
		code = 20001
	case errors.Is(err, service.ErrNoActivePeriod):
		code = 20002
	case errors.Is(err, service.ErrPeriodWindowInvalid):
		code = 20003
	case errors.As(err, &conflict):
		code = 20004
	case errors.Is(err, service.ErrPeriodTerminal):
		code = 20005
	case errors.Is(err, service.ErrPeriodTransition),
		errors.Is(err, service.ErrPeriodOutsideWindow),
		errors.Is(err, service.ErrPeriodNotEnded):
		code = 20006
	case errors.Is(err, service.ErrPeriodHasCompleted):
		code = 20007
	case errors.Is(err, service.ErrPeriodHasEvaluations):
		code = 20008
	case errors.Is(err, service.ErrPeriodVersion):
		code = 20009
	}
	writeBizError(c, err, code)
}
