package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

// EvaluationHandler 评估模块 HTTP 处理器
type EvaluationHandler struct {
	evaluationSvc service.EvaluationService
}

// NewEvaluationHandler 创建 EvaluationHandler
func NewEvaluationHandler(evaluationSvc service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{evaluationSvc: evaluationSvc}
}

// ListEvaluations 评估列表（普通用户仅能看到自己参与的评估）
// GET /api/v1/evaluations
func (h *EvaluationHandler) ListEvaluations(c *gin.Context) {
	var req dto.EvaluationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, total, err := h.evaluationSvc.List(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleEvaluationError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetEvaluation 获取评估详情
// GET /api/v1/evaluations/:id
func (h *EvaluationHandler) GetEvaluation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "评估ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	evaluation, err := h.evaluationSvc.GetByID(c.Request.Context(), id, caller)
	if err != nil {
		h.handleEvaluationError(c, err)
		return
	}

	response.OK(c, evaluation)
}

// CreateEvaluation 提交评估（评估人为当前用户）
// POST /api/v1/evaluations
func (h *EvaluationHandler) CreateEvaluation(c *gin.Context) {
	var req dto.CreateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	evaluation, err := h.evaluationSvc.Create(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleEvaluationError(c, err)
		return
	}

	response.Created(c, evaluation)
}

// AssignEvaluation 指派待完成评估
// POST /api/v1/evaluations/assign
func (h *EvaluationHandler) AssignEvaluation(c *gin.Context) {
	var req dto.AssignEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	evaluation, err := h.evaluationSvc.Assign(c.Request.Context(), &req, caller)
	if err != nil {
		h.handleEvaluationError(c, err)
		return
	}

	response.Created(c, evaluation)
}

// UpdateEvaluation 更新评估
// PUT /api/v1/evaluations/:id
func (h *EvaluationHandler) UpdateEvaluation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "评估ID不能为空")
		return
	}

	var req dto.UpdateEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	evaluation, err := h.evaluationSvc.Update(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleEvaluationError(c, err)
		return
	}

	response.OK(c, evaluation)
}

// CancelEvaluation 取消评估
// PUT /api/v1/evaluations/:id/cancel
func (h *EvaluationHandler) CancelEvaluation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "评估ID不能为空")
		return
	}

	var req dto.CancelEvaluationRequest
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

	evaluation, err := h.evaluationSvc.Cancel(c.Request.Context(), id, &req, caller)
	if err != nil {
		h.handleEvaluationError(c, err)
		return
	}

	response.OK(c, evaluation)
}

// DeleteEvaluation 删除评估
// DELETE /api/v1/evaluations/:id
func (h *EvaluationHandler) DeleteEvaluation(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "评估ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.evaluationSvc.Delete(c.Request.Context(), id, caller); err != nil {
		h.handleEvaluationError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleEvaluationError 统一处理评估模块业务错误
func (h *EvaluationHandler) handleEvaluationError(c *gin.Context, err error) {
	var conflict *service.ConflictError
	code := 21000
	switch {
	case errors.Is(err, service.ErrEvaluationNotFound):
		code = 21001
	case errors.Is(err, service.ErrEvaluatedNotFound), errors.Is(err, service.ErrEvaluatorNotFound):
		code = 21002
	case errors.Is(err, service.ErrEvaluatedInactive), errors.Is(err, service.ErrEvaluatorInactive):
		code = 21003
	case errors.Is(err, service.ErrPeriodNotActive):
		code = 21004
	case errors.Is(err, service.ErrEvaluationOutsideWindow):
		code = 21005
	case errors.As(err, &conflict):
		code = 21006
	case errors.Is(err, service.ErrEvaluationCanceled):
		code = 21007
	case errors.Is(err, service.ErrEvaluationLocked):
		code = 21008
	case errors.Is(err, service.ErrPeriodNotFound):
		code = 20001
	}
	writeBizError(c, err, code)
}
