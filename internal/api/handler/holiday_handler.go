package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"koerner360/backend/internal/dto"
	"koerner360/backend/internal/service"
	"koerner360/backend/pkg/response"
)

// HolidayHandler 节假日模块 Handler
type HolidayHandler struct {
	svc service.HolidayService
}

// NewHolidayHandler 创建 HolidayHandler 实例
func NewHolidayHandler(svc service.HolidayService) *HolidayHandler {
	return &HolidayHandler{svc: svc}
}

// ListHolidays 节假日列表
// GET /api/v1/holidays?from=&to=
func (h *HolidayHandler) ListHolidays(c *gin.Context) {
	var req dto.HolidayListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	holidays, err := h.svc.List(c.Request.Context(), &req)
	if err != nil {
		handleHolidayError(c, err)
		return
	}
	response.OK(c, gin.H{"list": holidays})
}

// AddHoliday 新增节假日
// POST /api/v1/holidays
func (h *HolidayHandler) AddHoliday(c *gin.Context) {
	var req dto.CreateHolidayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	resp, err := h.svc.Add(c.Request.Context(), &req, caller)
	if err != nil {
		handleHolidayError(c, err)
		return
	}
	response.Created(c, resp)
}

// DeleteHoliday 删除节假日
// DELETE /api/v1/holidays/:id
func (h *HolidayHandler) DeleteHoliday(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "节假日ID不能为空")
		return
	}

	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), id, caller); err != nil {
		handleHolidayError(c, err)
		return
	}
	response.OK(c, nil)
}

// ImportHolidays 导入 ICS 节假日日历
// POST /api/v1/holidays/import
//
// 支持两种方式：
//   - 文件上传: multipart/form-data, field="file"
//   - URL 导入: application/json, body={"url": "..."}
func (h *HolidayHandler) ImportHolidays(c *gin.Context) {
	caller, ok := MustGetCaller(c)
	if !ok {
		return
	}

	file, _, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		resp, err := h.svc.Import(c.Request.Context(), file, caller)
		if err != nil {
			handleHolidayError(c, err)
			return
		}
		response.Created(c, resp)
		return
	}

	var req dto.ImportHolidaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.URL = c.PostForm("url")
	}
	if req.URL == "" {
		response.BadRequest(c, 25000, "请上传 ICS 文件或提供 ICS URL")
		return
	}

	resp, err := h.svc.ImportURL(c.Request.Context(), req.URL, caller)
	if err != nil {
		handleHolidayError(c, err)
		return
	}
	response.Created(c, resp)
}

func handleHolidayError(c *gin.Context, err error) {
	code := 25000
	switch {
	case errors.Is(err, service.ErrHolidayNotFound):
		code = 25001
	case errors.Is(err, service.ErrHolidayExists):
		code = 25002
	}
	writeBizError(c, err, code)
}
